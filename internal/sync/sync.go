// Package sync fetches marketplace notifications from Gmail and records the
// orders they describe.
package sync

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/daviddao/mailorders/internal/auth"
	"github.com/daviddao/mailorders/internal/db"
	"github.com/daviddao/mailorders/internal/gmail"
	"github.com/daviddao/mailorders/internal/pipeline"
	"github.com/daviddao/mailorders/internal/resilience"
	"github.com/daviddao/mailorders/internal/types"
)

// Source is the mailbox being synced.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Get(ctx context.Context, id string) (*types.RawMessage, error)
}

// Options controls a sync run. Zero values select the defaults.
type Options struct {
	// Lookback is the Gmail newer_than window for a full sync.
	Lookback     string
	MaxMessages  int
	Workers      int
	RatePerSec   float64
	FetchTimeout time.Duration
	ForceFull    bool
	Retry        resilience.RetryConfig
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Lookback:     "30d",
		MaxMessages:  200,
		Workers:      4,
		RatePerSec:   5,
		FetchTimeout: 10 * time.Second,
		Retry:        resilience.DefaultRetryConfig(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Lookback == "" {
		o.Lookback = d.Lookback
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = d.MaxMessages
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = d.RatePerSec
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.Retry.Schedule == nil {
		o.Retry = d.Retry
	}
	return o
}

// Syncer runs the pipeline over new messages and stores the results.
type Syncer struct {
	store *db.DB
	pipe  *pipeline.Pipeline
	opts  Options
}

// New creates a Syncer.
func New(store *db.DB, pipe *pipeline.Pipeline, opts Options) *Syncer {
	return &Syncer{store: store, pipe: pipe, opts: opts.withDefaults()}
}

// DiscoverAccounts finds accounts by scanning for */credentials.json
// directories in the project root. Returns email addresses (directory names).
func DiscoverAccounts(projectRoot string) []string {
	entries, err := os.ReadDir(projectRoot)
	if err != nil {
		return nil
	}

	var accounts []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.Contains(entry.Name(), "@") {
			continue
		}
		credPath := filepath.Join(projectRoot, entry.Name(), "credentials.json")
		if _, err := os.Stat(credPath); err == nil {
			accounts = append(accounts, entry.Name())
		}
	}

	sort.Strings(accounts)
	return accounts
}

// SyncAccount authenticates account and syncs it. Missing credentials are
// returned as auth.ErrNoCredentials.
func (s *Syncer) SyncAccount(ctx context.Context, projectRoot, account string) (*types.SyncResult, error) {
	credPath := filepath.Join(projectRoot, account, "credentials.json")
	svc, err := auth.LoadGmailService(ctx, credPath)
	if err != nil {
		return &types.SyncResult{Account: account, Error: err.Error()}, eris.Wrapf(err, "auth %s", account)
	}
	return s.Run(ctx, account, gmail.New(svc))
}

// outcome is the result of processing one message.
type outcome struct {
	id      string
	fetched bool
	date    string
	rec     *types.OrderRecord
	event   *types.ClassifiedEvent
}

// Run syncs one account from src. A failed search is fatal for the run; a
// message that fails to load is skipped. When ctx ends, no new messages are
// started but fetches in flight finish or time out.
func (s *Syncer) Run(ctx context.Context, account string, src Source) (*types.SyncResult, error) {
	result := &types.SyncResult{Account: account}
	log := zap.L().With(zap.String("account", account))

	runID, err := s.store.StartRun(account)
	if err != nil {
		return result, err
	}
	result.RunID = runID
	defer func() {
		if err := s.store.FinishRun(result); err != nil {
			log.Warn("sync: could not log run", zap.Error(err))
		}
	}()

	query := s.query(account)
	retry := s.opts.Retry
	retry.OnRetry = resilience.RetryLogger("gmail", "search")
	ids, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]string, error) {
		return src.Search(ctx, query, s.opts.MaxMessages)
	})
	if err != nil {
		result.Error = err.Error()
		return result, eris.Wrapf(err, "search %s", account)
	}
	if len(ids) > s.opts.MaxMessages {
		ids = ids[:s.opts.MaxMessages]
	}

	var fresh []string
	for _, id := range ids {
		if s.store.MessageExists(id) {
			result.Skipped++
			continue
		}
		fresh = append(fresh, id)
	}
	log.Info("sync: searched",
		zap.String("query", query),
		zap.Int("found", len(ids)),
		zap.Int("new", len(fresh)),
	)

	outcomes := s.fetchAll(ctx, fresh, src)

	var events []types.ClassifiedEvent
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		result.Scanned++
		if !o.fetched {
			result.Failed++
			continue
		}
		switch {
		case o.rec == nil:
			result.Filtered++
			s.markProcessed(o.id, account, "", db.OutcomeFiltered, o.date)
		case o.event == nil:
			s.markProcessed(o.id, account, "", db.OutcomeIgnored, o.date)
		default:
			result.Extracted++
			events = append(events, *o.event)
			if err := s.store.RecordEvent(*o.event); err != nil {
				log.Warn("sync: record event", zap.String("message_id", o.id), zap.Error(err))
			}
			s.markProcessed(o.id, account, o.event.OrderNumber, db.OutcomeOrder, o.date)
		}
	}

	for _, order := range s.pipe.Consolidate(events) {
		if _, err := s.store.UpsertOrder(order); err != nil {
			log.Warn("sync: store order", zap.String("order_number", order.OrderNumber), zap.Error(err))
			continue
		}
		result.Orders++
	}

	log.Info("sync: done",
		zap.Int("scanned", result.Scanned),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("filtered", result.Filtered),
		zap.Int("extracted", result.Extracted),
		zap.Int("orders", result.Orders),
	)
	return result, nil
}

// fetchAll fetches and processes ids on a bounded, rate-limited pool.
// Results keep the order of ids; unstarted messages are nil.
func (s *Syncer) fetchAll(ctx context.Context, ids []string, src Source) []*outcome {
	out := make([]*outcome, len(ids))
	limiter := rate.NewLimiter(rate.Limit(s.opts.RatePerSec), 1)

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, id := range ids {
		i, id := i, id
		if ctx.Err() != nil {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			out[i] = s.process(ctx, id, src)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Syncer) process(ctx context.Context, id string, src Source) *outcome {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FetchTimeout)
	defer cancel()

	o := &outcome{id: id}
	retry := s.opts.Retry
	retry.OnRetry = resilience.RetryLogger("gmail", "get")
	raw, err := resilience.DoVal(fctx, retry, func(ctx context.Context) (*types.RawMessage, error) {
		return src.Get(ctx, id)
	})
	if err != nil || raw == nil {
		zap.L().Warn("sync: fetch failed, skipping", zap.String("message_id", id), zap.Error(err))
		return o
	}
	o.fetched = true

	o.rec = s.pipe.Extract(raw)
	if o.rec == nil {
		return o
	}
	o.date = o.rec.EmailDate
	if !o.rec.IsPurchaseSignal() {
		return o
	}
	if ev, ok := s.pipe.Classify(o.rec); ok {
		o.event = &ev
	}
	return o
}

func (s *Syncer) markProcessed(id, account, orderNumber, outcome, date string) {
	if err := s.store.MarkProcessed(id, account, orderNumber, outcome, date); err != nil {
		zap.L().Warn("sync: mark processed", zap.String("message_id", id), zap.Error(err))
	}
}

// query builds the Gmail search for account: merchant senders, limited to
// mail after the last processed message unless a full sync is forced.
func (s *Syncer) query(account string) string {
	var from []string
	for _, m := range s.pipe.Merchants() {
		for _, d := range m.SenderDomains {
			from = append(from, "from:"+d)
		}
	}
	var parts []string
	switch len(from) {
	case 0:
	case 1:
		parts = append(parts, from[0])
	default:
		parts = append(parts, "{"+strings.Join(from, " ")+"}")
	}

	window := "newer_than:" + s.opts.Lookback
	if !s.opts.ForceFull {
		if d := toGmailDate(s.store.LatestEmailDate(account)); d != "" {
			window = "after:" + d
		}
	}
	return strings.Join(append(parts, window), " ")
}

// toGmailDate converts an ISO date to Gmail after: format.
func toGmailDate(isoDate string) string {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, isoDate); err == nil {
			return t.Format("2006/01/02")
		}
	}
	return ""
}
