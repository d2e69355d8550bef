package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/daviddao/mailorders/internal/db"
	"github.com/daviddao/mailorders/internal/display"
	"github.com/daviddao/mailorders/internal/types"
)

type showOutput struct {
	Order   *types.StoredOrder   `json:"order"`
	History []types.HistoryEntry `json:"history"`
}

var showCmd = &cobra.Command{
	Use:   "show ORDER",
	Short: "Display an order with its canonical record and status history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := store.GetOrder(args[0])
		if eris.Is(err, db.ErrNotFound) {
			return eris.Errorf("order %q not found", args[0])
		}
		if err != nil {
			return err
		}
		history, err := store.History(o.OrderNumber)
		if err != nil {
			return eris.Wrap(err, "fetch history")
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), showOutput{Order: o, History: history})
		}
		display.OrderDetail(cmd.OutOrStdout(), o, history)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
