package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/daviddao/mailorders/internal/db"
	"github.com/daviddao/mailorders/internal/display"
	"github.com/daviddao/mailorders/internal/types"
)

var (
	ordersStatus string
	ordersLimit  int
)

var ordersCmd = &cobra.Command{
	Use:     "orders",
	Aliases: []string{"ls"},
	Short:   "List stored orders, newest first",
	Example: `  mo orders
  mo orders --status shipped -n 20
  mo orders --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := parseStatus(ordersStatus)
		if err != nil {
			return err
		}
		orders, err := store.ListOrders(db.OrderFilter{Status: status, Limit: ordersLimit})
		if err != nil {
			return err
		}

		if jsonOutput {
			if orders == nil {
				orders = []*types.StoredOrder{}
			}
			return writeJSON(cmd.OutOrStdout(), orders)
		}

		w := cmd.OutOrStdout()
		if len(orders) == 0 {
			fmt.Fprintln(w, "No orders found.")
			return nil
		}
		for _, o := range orders {
			fmt.Fprintln(w, display.OrderLine(o))
		}
		if !quietFlag {
			fmt.Fprintf(w, "\n%s\n", display.Dim.Render(fmt.Sprintf("%d order(s)", len(orders))))
		}
		return nil
	},
}

// parseStatus maps a case-insensitive status name to its canonical form.
func parseStatus(s string) (types.Status, error) {
	if s == "" {
		return "", nil
	}
	for _, v := range types.ValidStatuses {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	names := make([]string, len(types.ValidStatuses))
	for i, v := range types.ValidStatuses {
		names[i] = strings.ToLower(string(v))
	}
	return "", eris.Errorf("unknown status %q (want one of %s)", s, strings.Join(names, ", "))
}

func init() {
	ordersCmd.Flags().StringVarP(&ordersStatus, "status", "s", "", "Filter by status (ordered, shipped, delayed, delivered, canceled)")
	ordersCmd.Flags().IntVarP(&ordersLimit, "limit", "n", 50, "Maximum orders to list (0 for all)")
	rootCmd.AddCommand(ordersCmd)
}
