package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/cart"
	"github.com/roach88/shopsync/internal/model"
)

// NewCartCommand creates the cart command and its subcommands.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show or edit the cart",
		Long: `Show or edit the cart kept in local storage.

Lines are addressed by the index shown in "shopsync cart". Quantities are
checked against the stock captured when the product was added; an invalid
line blocks checkout until it is fixed or removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.showCart()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <product-id>",
		Short: "Add one unit of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.addToCart(cmd, id)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <index> <quantity>",
		Short: "Set the quantity of a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid quantity %q", args[1]))
			}
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Cart.SetQuantity(commandContext(cmd), index, qty); err != nil {
				return c.out.Fail("", err)
			}
			return c.showCart()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Cart.Remove(commandContext(cmd), index); err != nil {
				return c.out.Fail("", err)
			}
			return c.showCart()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Cart.Clear(commandContext(cmd)); err != nil {
				return c.out.Fail("", err)
			}
			return c.showCart()
		},
	})

	return cmd
}

func (c *client) addToCart(cmd *cobra.Command, id int64) error {
	ctx := commandContext(cmd)
	if _, err := c.Session.Require(ctx, model.RoleUser); err != nil {
		return c.out.Fail("", err)
	}
	if err := c.Products.Reload(ctx); err != nil {
		return c.out.Fail("Failed to load products", err)
	}
	p, err := c.Products.Editable(id)
	if err != nil {
		return c.out.Fail("", err)
	}
	if err := c.Cart.Add(ctx, p); err != nil {
		return c.out.Fail("", err)
	}

	qty := 0
	for _, l := range c.Cart.Lines() {
		if l.Product.ID == id {
			qty = l.Quantity
		}
	}
	return c.out.Success(
		fmt.Sprintf("Added %s to cart (quantity %d).\n", p.Name, qty),
		map[string]any{"product_id": id, "quantity": qty},
	)
}

// cartView is the JSON shape of the cart.
type cartView struct {
	Lines       []cart.Line `json:"lines"`
	Units       int         `json:"units"`
	Total       float64     `json:"total"`
	Submittable bool        `json:"submittable"`
}

func (c *client) showCart() error {
	lines := c.Cart.Lines()
	view := cartView{
		Lines:       lines,
		Units:       c.Cart.Units(),
		Total:       c.Cart.Total(),
		Submittable: c.Cart.Submittable(),
	}
	if view.Lines == nil {
		view.Lines = []cart.Line{}
	}
	return c.out.Success(renderCart(view), view)
}

func renderCart(v cartView) string {
	if len(v.Lines) == 0 {
		return "Your cart is empty.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-3s %-24s %5s %10s %10s\n", "#", "PRODUCT", "QTY", "PRICE", "SUBTOTAL")
	for i, l := range v.Lines {
		fmt.Fprintf(&b, "%-3d %-24s %5d %10s %10s\n",
			i, truncate(l.Product.Name, 24), l.Quantity, formatMoney(l.Product.Price), formatMoney(l.Subtotal()))
		if l.Error != "" {
			fmt.Fprintf(&b, "    ! %s\n", l.Error)
		}
	}
	fmt.Fprintf(&b, "Total: %s (%d items)\n", formatMoney(v.Total), v.Units)
	return b.String()
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s %q", what, arg))
	}
	return id, nil
}

func parseIndex(arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid line index %q", arg))
	}
	return i, nil
}
