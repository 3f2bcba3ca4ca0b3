// Package storage provides the session-scoped key/value persistence service
// used for the cart and the signed-in identity.
//
// The Storage interface is deliberately small (Get, Set, Remove on string
// values) so callers treat the engine behind it as opaque. Three engines are
// provided:
//   - Memory: process-local map, used by tests and one-shot tools
//   - SQLite: durable file-backed store, one row per (session, key)
//   - Redis: shared store, one key per (session, key)
//
// Every engine scopes values by a session namespace, which plays the role of a
// browser tab: two namespaces never observe each other's cart or identity.
package storage
