// Package optimistic implements the two-phase mutation pattern shared by every
// mutating user action.
//
// A mutation is guarded per action kind, dispatched to the backend on its own
// goroutine, and reconciled on the loop goroutine:
//
//	Submit ─► guard ─► Call (goroutine) ─► loop.Post ─┬─► Apply ─► release ─► Confirm ─► Reload (background)
//	                                                  └─► release ─► Reject
//
// A second Submit of the same kind while the first is unresolved is dropped
// with ErrInFlight. Different kinds never block each other and no ordering
// between them is assumed.
package optimistic
