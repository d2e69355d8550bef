package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/daviddao/mailorders/internal/display"
	msync "github.com/daviddao/mailorders/internal/sync"
	"github.com/daviddao/mailorders/internal/types"
)

var (
	syncFull    bool
	syncAccount string
	syncMax     int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch marketplace emails from Gmail and record their orders",
	Long: `Sync order emails from every discovered Gmail account into the mailorders database.

Accounts are directories named after the address that contain credentials.json.
Only mail newer than the last processed message is searched unless --full is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		root, err := credentialsRoot()
		if err != nil {
			return err
		}
		accounts := resolveAccounts(root, syncAccount)
		if len(accounts) == 0 {
			return eris.New("no accounts found, add account directories with credentials.json to the project root")
		}

		pipe, err := newPipeline()
		if err != nil {
			return err
		}
		opts, err := cfg.SyncOptions()
		if err != nil {
			return err
		}
		opts.ForceFull = syncFull
		if syncMax > 0 {
			opts.MaxMessages = syncMax
		}
		syncer := msync.New(store, pipe, opts)

		if !quietFlag && !jsonOutput {
			mode := ""
			if syncFull {
				mode = fmt.Sprintf(" (full %s)", opts.Lookback)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Syncing %d account(s)%s...\n", len(accounts), mode)
		}

		results := make([]*types.SyncResult, len(accounts))
		g, gctx := errgroup.WithContext(ctx)
		for i, account := range accounts {
			i, account := i, account
			g.Go(func() error {
				res, err := syncer.SyncAccount(gctx, root, account)
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		summary := &types.SyncSummary{}
		for _, res := range results {
			summary.Accounts = append(summary.Accounts, *res)
			summary.TotalOrders += res.Orders
		}
		summary.TotalInDB = store.OrderCount()

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), summary)
		}
		if !quietFlag {
			for _, res := range summary.Accounts {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %3d scanned  %3d skipped  %3d orders  %s\n",
					display.AccountLabel(res.Account), res.Scanned, res.Skipped, res.Orders,
					display.Dim.Render(fmt.Sprintf("(%d filtered, %d failed)", res.Filtered, res.Failed)))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			display.SuccessMsg("Done! %d orders updated. Total in DB: %d", summary.TotalOrders, summary.TotalInDB)
		}
		return nil
	},
}

// resolveAccounts returns the list of accounts to operate on.
func resolveAccounts(root, account string) []string {
	if account != "" {
		return []string{account}
	}
	if cfg != nil && cfg.Gmail.Account != "" {
		return []string{cfg.Gmail.Account}
	}
	return msync.DiscoverAccounts(root)
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Ignore sync history and re-scan the whole lookback window")
	syncCmd.Flags().StringVar(&syncAccount, "account", "", "Sync single account")
	syncCmd.Flags().IntVarP(&syncMax, "max", "n", 0, "Maximum messages per account (default: sync.max_messages)")
	rootCmd.AddCommand(syncCmd)
}
