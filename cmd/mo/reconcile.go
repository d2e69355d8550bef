package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviddao/mailorders/internal/auth"
	"github.com/daviddao/mailorders/internal/classify"
	"github.com/daviddao/mailorders/internal/db"
	"github.com/daviddao/mailorders/internal/display"
	"github.com/daviddao/mailorders/internal/gmail"
	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/reconcile"
	"github.com/daviddao/mailorders/internal/types"
)

var (
	reconcileAccount string
	reconcileLimit   int
	reconcileWorkers int
)

type reconcileResult struct {
	OrderNumber    string       `json:"order_number"`
	Account        string       `json:"account"`
	Strategy       string       `json:"strategy"`
	Status         types.Status `json:"status"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
	Carrier        string       `json:"carrier,omitempty"`
	Updated        bool         `json:"updated"`
}

type reconcileOutput struct {
	Checked  int               `json:"checked"`
	Results  []reconcileResult `json:"results"`
	NotFound []string          `json:"not_found"`
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [ORDER...]",
	Short: "Search Gmail for delivery evidence on undelivered orders",
	Long: `Search each account for delivery confirmations the sync did not see.

With no arguments every stored order that is not Delivered or Canceled is
checked, oldest first. Searches run from narrow subject queries to a broad
sweep of recent merchant mail; query results are shared across orders.`,
	Example: `  mo reconcile
  mo reconcile 01-3KF7CE560J 75839201
  mo reconcile --account user@example.com --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orders, err := ordersToReconcile(args)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			if !quietFlag {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to reconcile.")
			}
			return nil
		}

		root, err := credentialsRoot()
		if err != nil {
			return err
		}
		accounts := resolveAccounts(root, reconcileAccount)
		if len(accounts) == 0 {
			return eris.New("no accounts found, add account directories with credentials.json to the project root")
		}

		pipe, err := newPipeline()
		if err != nil {
			return err
		}
		workers := reconcileWorkers
		if workers <= 0 {
			workers = cfg.Reconcile.Workers
		}
		rc := &reconcileRun{
			store:      store,
			merchants:  cfg.MerchantRegistry(),
			priorities: pipe.Priorities(),
			workers:    workers,
			cache:      reconcile.NewCache(),
			configFor:  cfg.ReconcilerConfig,
		}

		out := reconcileOutput{Checked: len(orders)}
		pending := orders
		for _, account := range accounts {
			if len(pending) == 0 {
				break
			}
			svc, err := auth.LoadGmailService(ctx, filepath.Join(root, account, "credentials.json"))
			if err != nil {
				return eris.Wrapf(err, "auth %s", account)
			}
			var results []reconcileResult
			results, pending, err = rc.run(ctx, account, gmail.New(svc), pending)
			if err != nil {
				return err
			}
			out.Results = append(out.Results, results...)
		}
		for _, o := range pending {
			if !slices.ContainsFunc(out.Results, func(r reconcileResult) bool { return r.OrderNumber == o.OrderNumber }) {
				out.NotFound = append(out.NotFound, o.OrderNumber)
			}
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		w := cmd.OutOrStdout()
		for _, r := range out.Results {
			mark := display.Dim.Render("unchanged")
			if r.Updated {
				mark = display.Success.Render("updated")
			}
			fmt.Fprintf(w, "  %s %-14s %s  via %s  %s\n",
				display.StatusDot(r.Status), r.OrderNumber, display.StatusLabel(r.Status), r.Strategy, mark)
		}
		if len(out.NotFound) > 0 && !quietFlag {
			fmt.Fprintf(w, "  %s\n", display.Dim.Render(fmt.Sprintf("no evidence for %d order(s)", len(out.NotFound))))
		}
		if !quietFlag {
			fmt.Fprintln(w)
			display.SuccessMsg("Checked %d order(s), cache hits: %d", out.Checked, rc.cache.Hits())
		}
		return nil
	},
}

// ordersToReconcile loads the named orders, or every order still awaiting
// delivery.
func ordersToReconcile(args []string) ([]*types.StoredOrder, error) {
	if len(args) == 0 {
		limit := reconcileLimit
		if limit <= 0 {
			limit = cfg.Reconcile.Limit
		}
		return store.OrdersAwaitingDelivery(limit)
	}
	var out []*types.StoredOrder
	for _, num := range args {
		o, err := store.GetOrder(num)
		if eris.Is(err, db.ErrNotFound) {
			display.ErrorMsg("order %s not found, skipping", num)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// reconcileRun applies delivery evidence from one or more accounts to stored
// orders, sharing one query cache.
type reconcileRun struct {
	store      *db.DB
	merchants  merchant.Registry
	priorities classify.Priorities
	workers    int
	cache      *reconcile.Cache
	configFor  func(merchant.Merchant) (reconcile.Config, error)
}

// run searches src for each order, grouped by merchant. It returns the
// evidence found and the orders not yet confirmed delivered.
func (rc *reconcileRun) run(ctx context.Context, account string, src reconcile.Source, orders []*types.StoredOrder) ([]reconcileResult, []*types.StoredOrder, error) {
	var names []string
	groups := map[string][]*types.StoredOrder{}
	for _, o := range orders {
		m := rc.merchantFor(o)
		if _, ok := groups[m.Name]; !ok {
			names = append(names, m.Name)
		}
		groups[m.Name] = append(groups[m.Name], o)
	}

	var results []reconcileResult
	var pending []*types.StoredOrder
	for _, name := range names {
		group := groups[name]
		m, _ := rc.merchants.ByName(name)
		rcfg, err := rc.configFor(m)
		if err != nil {
			return nil, nil, err
		}
		numbers := make([]string, len(group))
		for i, o := range group {
			numbers[i] = o.OrderNumber
		}

		evidence := reconcile.New(src, rcfg).FindAll(ctx, numbers, rc.workers, rc.cache)
		for _, o := range group {
			ev, ok := evidence[o.OrderNumber]
			if !ok || !ev.Found {
				pending = append(pending, o)
				continue
			}
			res, err := rc.apply(account, ev)
			if err != nil {
				return nil, nil, err
			}
			results = append(results, res)
			if !ev.Delivered() {
				pending = append(pending, o)
			}
		}
	}
	return results, pending, nil
}

func (rc *reconcileRun) apply(account string, ev reconcile.Evidence) (reconcileResult, error) {
	updated, err := rc.store.ApplyDelivery(ev.OrderNumber, db.DeliveryUpdate{
		Strategy:       ev.StrategyUsed,
		Delivered:      ev.Delivered(),
		Priority:       rc.priorities.Of(types.StatusDelivered),
		MessageIDs:     ev.MessageIDs,
		TrackingNumber: ev.TrackingNumber,
		Carrier:        ev.Carrier,
	})
	if err != nil {
		return reconcileResult{}, eris.Wrapf(err, "apply evidence for %s", ev.OrderNumber)
	}
	zap.L().Info("reconcile: evidence",
		zap.String("order_number", ev.OrderNumber),
		zap.String("strategy", ev.StrategyUsed),
		zap.String("status", string(ev.Status)),
		zap.Bool("updated", updated),
	)
	return reconcileResult{
		OrderNumber:    ev.OrderNumber,
		Account:        account,
		Strategy:       ev.StrategyUsed,
		Status:         ev.Status,
		TrackingNumber: ev.TrackingNumber,
		Carrier:        ev.Carrier,
		Updated:        updated,
	}, nil
}

// merchantFor returns the merchant that sent o's canonical message, or the
// first configured merchant.
func (rc *reconcileRun) merchantFor(o *types.StoredOrder) merchant.Merchant {
	if m, ok := rc.merchants.ByName(o.Canonical.Merchant); ok {
		return m
	}
	if len(rc.merchants) > 0 {
		return rc.merchants[0]
	}
	return merchant.StockX
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileAccount, "account", "", "Search a single account")
	reconcileCmd.Flags().IntVar(&reconcileLimit, "limit", 0, "Maximum orders to check (default: reconcile.limit)")
	reconcileCmd.Flags().IntVarP(&reconcileWorkers, "workers", "w", 0, "Orders searched concurrently (default: reconcile.workers)")
	rootCmd.AddCommand(reconcileCmd)
}
