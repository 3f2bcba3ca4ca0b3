// Package model defines the record types shared by the cart, roster and order
// workflows, together with the parsing rules applied at the backend boundary.
//
// Records arriving from the backend are decoded into these types and validated
// once (status enums, roles, identities) so that downstream code never handles
// untyped payloads.
//
// # Identity
//
// Products and orders are identified by positive integer ids. An id of zero or
// less marks a sentinel entity: it may appear in a backend listing but must never
// reach an actionable view. See IsSentinel.
package model
