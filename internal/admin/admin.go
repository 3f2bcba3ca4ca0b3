// Package admin implements the admin-side actions: order status transitions
// and product catalog edits.
//
// Every action goes through the optimistic Applier under its own action kind.
// Consequential actions require an explicit confirmation first; a declined
// confirmation returns ErrDeclined and makes no remote call.
package admin

import (
	"context"
	"errors"
)

// ErrDeclined is returned when the user refused the confirmation step.
var ErrDeclined = errors.New("action declined")

// Confirmer asks the user to confirm a consequential action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// AlwaysConfirm confirms every prompt. Used for non-interactive callers that
// already expressed intent, e.g. a --yes flag.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) bool { return true })

// Success messages carried by the applied event of each action.
const (
	MsgStatusUpdated  = "Order Status Updated!"
	MsgPaymentUpdated = "Payment Status Updated!"
	MsgProductUpdated = "Product Updated Successfully!"
	MsgProductAdded   = "Product Added Successfully!"
	MsgProductDeleted = "Product Deleted Successfully!"
)
