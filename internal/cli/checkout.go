package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
)

// Checkout messages for carts that cannot be placed.
const (
	MsgCartEmpty   = "Your cart is empty."
	MsgCartInvalid = "Fix the marked cart lines before placing the order."
)

// NewCheckoutCommand creates the checkout command.
func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Place the cart as an order",
		Long: `Place the cart as an order and wait for the backend's answer.

On success the cart is cleared and the order token is printed. On failure
the cart is kept as it was so it can be fixed and placed again.

Exit codes:
  0 - Order placed
  1 - Cart invalid, not signed in, or the backend rejected the order`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.checkout(cmd)
		},
	}
}

func (c *client) checkout(cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	if _, err := c.Session.Require(ctx, model.RoleUser); err != nil {
		return c.out.Fail("", err)
	}

	p, err := c.Checkout.Submit(ctx)
	if err != nil {
		return c.out.Fail("Failed to place order", err)
	}
	if p == nil {
		if c.Cart.Len() == 0 {
			return c.out.Fail("", failure.Validation(MsgCartEmpty))
		}
		if c.out.Format != "json" {
			fmt.Fprint(c.out.Writer, renderCart(cartView{Lines: c.Cart.Lines(), Units: c.Cart.Units(), Total: c.Cart.Total()}))
		}
		return c.out.Fail("", failure.Validation(MsgCartInvalid))
	}
	if err := p.Wait(ctx); err != nil {
		return c.out.Fail("Failed to place order", err)
	}

	token, _ := c.Checkout.Confirmation()
	return c.out.Success(
		fmt.Sprintf("Payment confirmation for order %s.\n", token),
		map[string]any{
			"token":    token,
			"response": c.Checkout.LastResponse(),
			"view":     string(c.Checkout.View()),
		},
	)
}

// NewOrdersCommand creates the orders command.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List orders",
		Long: `Reload and list orders. Admins see every order; customers see their
own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Orders.Reload(commandContext(cmd)); err != nil {
				return c.out.Fail("Failed to load orders", err)
			}
			items := c.Orders.Items()
			return c.out.Success(renderOrders(items), items)
		},
	}
}

func renderOrders(orders []model.Order) string {
	if len(orders) == 0 {
		return "No orders yet.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-12s %-10s %-10s %-10s %10s\n", "ORDER", "USER", "DATE", "STATUS", "PAYMENT", "TOTAL")
	for _, o := range orders {
		fmt.Fprintf(&b, "%-6d %-12s %-10s %-10s %-10s %10s\n",
			o.ID,
			truncate(o.User.Username, 12),
			o.CreatedAt.Format("2006-01-02"),
			o.Status,
			o.PaymentStatus,
			formatMoney(o.TotalAmount),
		)
		for _, l := range o.Lines {
			fmt.Fprintf(&b, "       %d x %s\n", l.Quantity, l.Product.Name)
		}
	}
	return b.String()
}
