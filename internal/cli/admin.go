package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/admin"
	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/optimistic"
)

// AdminOptions holds flags shared by admin commands.
type AdminOptions struct {
	*RootOptions
	Yes bool
}

// NewAdminCommand creates the admin command group.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdminOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage orders and the catalog (admins only)",
		Long: `Manage orders and the catalog. Requires an admin session.

Status changes only move forward: PLACED -> SHIPPED -> DELIVERED and
PENDING -> COMPLETED. Every change asks for confirmation unless --yes is
given.`,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm without prompting")

	cmd.AddCommand(newAdminStatusCommand(opts))
	cmd.AddCommand(newAdminPaymentCommand(opts))
	cmd.AddCommand(newAdminProductCommand(opts))
	return cmd
}

// openAdmin opens a client and checks for an admin session.
func openAdmin(cmd *cobra.Command, opts *AdminOptions) (*client, error) {
	var confirm admin.Confirmer
	if !opts.Yes {
		confirm = newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	c, err := openClient(cmd, opts.RootOptions, confirm)
	if err != nil {
		return nil, err
	}
	if _, err := c.Session.Require(commandContext(cmd), model.RoleAdmin); err != nil {
		ferr := c.out.Fail("", err)
		_ = c.Close()
		return nil, ferr
	}
	return c, nil
}

// await waits for a submitted mutation and returns its outcome.
func await(ctx context.Context) func(*optimistic.Pending, error) error {
	return func(p *optimistic.Pending, err error) error {
		if err != nil {
			return err
		}
		return p.Wait(ctx)
	}
}

func newAdminStatusCommand(opts *AdminOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <order-id> <PLACED|SHIPPED|DELIVERED>",
		Short: "Advance an order's lifecycle status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			c, err := openAdmin(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := commandContext(cmd)
			st, err := model.ParseOrderStatus(args[1])
			if err != nil {
				return c.out.Fail("", failure.Validation("%v", err))
			}
			if err := c.Orders.Reload(ctx); err != nil {
				return c.out.Fail("Failed to load orders", err)
			}
			if err := await(ctx)(c.Status.UpdateStatus(ctx, id, st)); err != nil {
				return c.out.Fail("Failed to update status", err)
			}
			return c.showOrder(id)
		},
	}
}

func newAdminPaymentCommand(opts *AdminOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "payment <order-id> <PENDING|COMPLETED>",
		Short: "Advance an order's payment status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			c, err := openAdmin(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := commandContext(cmd)
			st, err := model.ParsePaymentStatus(args[1])
			if err != nil {
				return c.out.Fail("", failure.Validation("%v", err))
			}
			if err := c.Orders.Reload(ctx); err != nil {
				return c.out.Fail("Failed to load orders", err)
			}
			if err := await(ctx)(c.Status.UpdatePaymentStatus(ctx, id, st)); err != nil {
				return c.out.Fail("Failed to update payment status", err)
			}
			return c.showOrder(id)
		},
	}
}

// showOrder prints the cached order after a transition was applied.
func (c *client) showOrder(id int64) error {
	o, ok := c.Orders.Get(id)
	if !ok {
		return c.out.Success("", nil)
	}
	return c.out.Success(
		fmt.Sprintf("Order %d: %s / %s\n", o.ID, o.Status, o.PaymentStatus),
		o,
	)
}

func newAdminProductCommand(opts *AdminOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Add, edit or delete catalog products",
	}

	var draft model.ProductDraft
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openAdmin(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := commandContext(cmd)
			if err := c.Products.Reload(ctx); err != nil {
				return c.out.Fail("Failed to load products", err)
			}
			if err := await(ctx)(c.Editor.Add(ctx, draft)); err != nil {
				return c.out.Fail("Failed to add product", err)
			}
			items := c.Products.Items()
			return c.out.Success(renderProducts(items), items)
		},
	}
	productFlags(add, &draft)

	var edit model.ProductDraft
	editCmd := &cobra.Command{
		Use:   "edit <product-id>",
		Short: "Edit a product; unset flags keep their values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			c, err := openAdmin(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := commandContext(cmd)
			if err := c.Products.Reload(ctx); err != nil {
				return c.out.Fail("Failed to load products", err)
			}
			p, err := c.Editor.StartEdit(id)
			if err != nil {
				return c.out.Fail("", err)
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				p.Name = edit.Name
			}
			if flags.Changed("price") {
				p.Price = edit.Price
			}
			if flags.Changed("stock") {
				p.StockQuantity = edit.StockQuantity
			}
			if flags.Changed("description") {
				p.Description = edit.Description
			}
			if flags.Changed("image") {
				p.ImageURL = edit.ImageURL
			}
			if err := await(ctx)(c.Editor.Save(ctx, p)); err != nil {
				c.Editor.CancelEdit()
				return c.out.Fail("Failed to update product", err)
			}
			items := c.Products.Items()
			return c.out.Success(renderProducts(items), items)
		},
	}
	productFlags(editCmd, &edit)

	del := &cobra.Command{
		Use:   "delete <product-id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			c, err := openAdmin(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := commandContext(cmd)
			if err := c.Products.Reload(ctx); err != nil {
				return c.out.Fail("Failed to load products", err)
			}
			if err := await(ctx)(c.Editor.Delete(ctx, id)); err != nil {
				return c.out.Fail("Failed to delete product", err)
			}
			items := c.Products.Items()
			return c.out.Success(renderProducts(items), items)
		},
	}

	cmd.AddCommand(add, editCmd, del)
	return cmd
}

func productFlags(cmd *cobra.Command, d *model.ProductDraft) {
	cmd.Flags().StringVar(&d.Name, "name", "", "product name")
	cmd.Flags().Float64Var(&d.Price, "price", 0, "unit price")
	cmd.Flags().IntVar(&d.StockQuantity, "stock", 0, "stock quantity")
	cmd.Flags().StringVar(&d.Description, "description", "", "description")
	cmd.Flags().StringVar(&d.ImageURL, "image", "", "image reference")
}
