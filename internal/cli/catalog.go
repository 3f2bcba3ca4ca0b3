package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/model"
)

// NewProductsCommand creates the products command.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the catalog",
		Long: `Reload the product catalog from the backend and list it.

Entries with a placeholder id are never shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Products.Reload(commandContext(cmd)); err != nil {
				return c.out.Fail("Failed to load products", err)
			}
			items := c.Products.Items()
			return c.out.Success(renderProducts(items), items)
		},
	}
}

func renderProducts(items []model.Product) string {
	if len(items) == 0 {
		return "No products available.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-24s %10s %6s\n", "ID", "NAME", "PRICE", "STOCK")
	for _, p := range items {
		fmt.Fprintf(&b, "%-4d %-24s %10s %6d\n", p.ID, truncate(p.Name, 24), formatMoney(p.Price), p.StockQuantity)
	}
	return b.String()
}

// truncate shortens s to n runes, marking the cut with "~".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
