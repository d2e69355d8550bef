package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailorders/internal/display"
	"github.com/daviddao/mailorders/internal/types"
)

type statsOutput struct {
	Orders   int                  `json:"orders"`
	ByStatus map[types.Status]int `json:"by_status"`
	Runs     []types.SyncRun      `json:"recent_runs"`
}

var statsRuns int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show order counts by status and recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := store.StatusCounts()
		if err != nil {
			return err
		}
		runs, err := store.RecentRuns(statsRuns)
		if err != nil {
			return err
		}
		total := store.OrderCount()

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), statsOutput{Orders: total, ByStatus: counts, Runs: runs})
		}

		w := cmd.OutOrStdout()
		display.Header("Mailorders Statistics")
		fmt.Fprintln(w)

		fmt.Fprintln(w, "  Orders")
		for _, s := range types.ValidStatuses {
			fmt.Fprintf(w, "    %s %s %4d\n", display.StatusDot(s), display.StatusLabel(s), counts[s])
		}
		fmt.Fprintf(w, "    %-11s %4d\n", "Total", total)
		fmt.Fprintln(w)

		if len(runs) == 0 {
			return nil
		}
		fmt.Fprintln(w, "  Recent syncs")
		for _, r := range runs {
			line := fmt.Sprintf("%3d scanned  %3d orders", r.Scanned, r.Orders)
			if r.Error != "" {
				line = display.ErrStyle.Render("failed: " + display.Truncate(r.Error, 60))
			}
			fmt.Fprintf(w, "    %-12s %s  %s\n",
				display.AccountLabel(r.Account), line, display.Dim.Render(display.TimeAgo(r.StartedAt)))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsRuns, "runs", 5, "Number of recent sync runs to show")
	rootCmd.AddCommand(statsCmd)
}
