package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/daviddao/mailorders/internal/auth"
	"github.com/daviddao/mailorders/internal/display"
	"github.com/daviddao/mailorders/internal/extract"
	"github.com/daviddao/mailorders/internal/gmail"
	"github.com/daviddao/mailorders/internal/message"
	"github.com/daviddao/mailorders/internal/pipeline"
	"github.com/daviddao/mailorders/internal/tracking"
	"github.com/daviddao/mailorders/internal/types"
)

var (
	gmailAccount     string
	gmailCredentials string
	gmailMaxResults  int
	gmailTrace       bool
)

// gmailCmd is the parent command for Gmail operations.
var gmailCmd = &cobra.Command{
	Use:   "gmail",
	Short: "Gmail operations (search, parse)",
	Long:  "Search Gmail and run the order pipeline over single live messages.",
}

var gmailSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search Gmail messages",
	Long: `Search Gmail messages matching a query.

Uses the same query syntax as Gmail's search box.
Searches every account by default, or use --account to search one.`,
	Example: `  mo gmail search "from:stockx.com newer_than:7d"
  mo gmail search 'subject:"Order Delivered" "01-3KF7CE560J"' -n 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		ctx := cmd.Context()
		root, err := credentialsRoot()
		if err != nil {
			return err
		}

		accounts := resolveAccounts(root, gmailAccount)
		if len(accounts) == 0 {
			return eris.New("no accounts found, add account directories with credentials.json to the project root")
		}

		var allResults []gmail.MessageSummary
		for _, account := range accounts {
			svc, err := auth.LoadGmailService(ctx, resolveCredentials(root, account, gmailCredentials))
			if err != nil {
				if !quietFlag {
					fmt.Fprintf(cmd.ErrOrStderr(), "  ! %s: %v, skipping\n", account, err)
				}
				continue
			}

			client := gmail.New(svc)
			ids, err := client.Search(ctx, query, gmailMaxResults)
			if err != nil {
				if !quietFlag {
					fmt.Fprintf(cmd.ErrOrStderr(), "  ! %s: search failed: %v\n", account, err)
				}
				continue
			}
			allResults = append(allResults, client.Summaries(ctx, ids)...)
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), allResults)
		}

		w := cmd.OutOrStdout()
		if len(allResults) == 0 {
			fmt.Fprintf(w, "No messages found matching: %s\n", query)
			return nil
		}

		fmt.Fprintf(w, "Found %d message(s) matching: %s\n\n", len(allResults), query)
		for i, msg := range allResults {
			fmt.Fprintf(w, "[%d] ID: %s\n", i+1, msg.ID)
			fmt.Fprintf(w, "    From: %s\n", msg.From)
			fmt.Fprintf(w, "    Subject: %s\n", msg.Subject)
			fmt.Fprintf(w, "    Date: %s\n", msg.Date)
			fmt.Fprintf(w, "    Preview: %s\n\n", display.Truncate(msg.Snippet, 100))
		}
		return nil
	},
}

type parseOutput struct {
	Account  string                    `json:"account,omitempty"`
	Filtered bool                      `json:"filtered"`
	Record   *types.OrderRecord        `json:"record,omitempty"`
	Event    *types.ClassifiedEvent    `json:"event,omitempty"`
	Tracking []types.TrackingCandidate `json:"tracking,omitempty"`
}

var gmailParseCmd = &cobra.Command{
	Use:   "parse MESSAGE_ID",
	Short: "Run the order pipeline over one Gmail message",
	Long: `Fetch one message and print the order record and lifecycle event it yields.

The message is looked up in each account until found. Nothing is stored.
Use --trace to list every tracking-number candidate and its verdict.`,
	Example: `  mo gmail parse 18d5a7b3c4e5f6a7
  mo gmail parse 18d5a7b3c4e5f6a7 --trace --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		messageID := args[0]
		ctx := cmd.Context()
		root, err := credentialsRoot()
		if err != nil {
			return err
		}
		accounts := resolveAccounts(root, gmailAccount)
		if len(accounts) == 0 {
			return eris.New("no accounts found, add account directories with credentials.json to the project root")
		}
		pipe, err := newPipeline()
		if err != nil {
			return err
		}

		for _, account := range accounts {
			svc, err := auth.LoadGmailService(ctx, resolveCredentials(root, account, gmailCredentials))
			if err != nil {
				continue
			}
			raw, err := gmail.New(svc).Get(ctx, messageID)
			if err != nil {
				continue // Try next account.
			}
			out := parseMessage(pipe, raw, gmailTrace)
			out.Account = account
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printParse(cmd.OutOrStdout(), raw, out)
			return nil
		}

		return eris.Errorf("message %s not found in any account", messageID)
	},
}

// parseMessage runs pipe over raw without storing anything.
func parseMessage(pipe *pipeline.Pipeline, raw *types.RawMessage, trace bool) parseOutput {
	rec := pipe.Extract(raw)
	if rec == nil {
		return parseOutput{Filtered: true}
	}
	out := parseOutput{Record: rec}
	if rec.IsPurchaseSignal() {
		if ev, ok := pipe.Classify(rec); ok {
			out.Event = &ev
		}
	}
	if trace {
		text, html := message.Normalize(raw)
		out.Tracking = tracking.Scan(extract.Text(text, html), rec.OrderNumber)
	}
	return out
}

func printParse(w io.Writer, raw *types.RawMessage, out parseOutput) {
	fmt.Fprintf(w, "From: %s\n", raw.From)
	fmt.Fprintf(w, "Subject: %s\n", display.Bold.Render(raw.Subject))
	fmt.Fprintf(w, "Account: %s\n\n", display.AccountLabel(out.Account))

	switch {
	case out.Filtered:
		fmt.Fprintln(w, display.Dim.Render("Sale notification, not an order."))
		return
	case out.Event == nil:
		fmt.Fprintln(w, display.Dim.Render("No order number found."))
	default:
		o := &types.StoredOrder{ConsolidatedOrder: types.ConsolidatedOrder{
			OrderNumber:  out.Event.OrderNumber,
			Canonical:    *out.Event,
			StatusesSeen: []types.Status{out.Event.Status},
			MessageCount: 1,
		}}
		display.OrderDetail(w, o, nil)
	}

	if len(out.Tracking) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, display.Muted.Render("Tracking candidates"))
		for _, c := range out.Tracking {
			verdict := display.Success.Render("accepted")
			if !c.Accepted {
				verdict = display.Dim.Render("rejected: " + c.Reason)
			}
			fmt.Fprintf(w, "  %-24s %-8s %-12s %s\n", c.Value, c.Carrier, c.Pattern, verdict)
		}
	}
}

// resolveCredentials returns the credentials path for an account.
func resolveCredentials(root, account, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(root, account, "credentials.json")
}

func init() {
	// Gmail parent flags.
	gmailCmd.PersistentFlags().StringVar(&gmailAccount, "account", "", "Gmail account to use (default: all accounts)")
	gmailCmd.PersistentFlags().StringVar(&gmailCredentials, "credentials", "", "Path to credentials.json")

	// Search flags.
	gmailSearchCmd.Flags().IntVarP(&gmailMaxResults, "max-results", "n", 10, "Maximum results to return")

	// Parse flags.
	gmailParseCmd.Flags().BoolVar(&gmailTrace, "trace", false, "Show every tracking-number candidate")

	// Wire up.
	gmailCmd.AddCommand(gmailSearchCmd)
	gmailCmd.AddCommand(gmailParseCmd)
	rootCmd.AddCommand(gmailCmd)
}
