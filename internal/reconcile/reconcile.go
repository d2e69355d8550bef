// Package reconcile searches the message source for delivery evidence on
// orders that are already recorded but not yet known to be delivered.
package reconcile

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviddao/mailorders/internal/classify"
	"github.com/daviddao/mailorders/internal/extract"
	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/message"
	"github.com/daviddao/mailorders/internal/resilience"
	"github.com/daviddao/mailorders/internal/tracking"
	"github.com/daviddao/mailorders/internal/types"
)

// Source is the message store being searched.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Get(ctx context.Context, id string) (*types.RawMessage, error)
}

// Evidence is the outcome of a search for one order number.
type Evidence struct {
	OrderNumber    string       `json:"order_number"`
	Found          bool         `json:"found"`
	StrategyUsed   string       `json:"strategy_used,omitempty"`
	Priority       int          `json:"priority,omitempty"`
	Status         types.Status `json:"status"`
	MessageIDs     []string     `json:"message_ids,omitempty"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
	Carrier        string       `json:"carrier,omitempty"`
}

// Delivered reports whether the evidence confirms delivery.
func (e Evidence) Delivered() bool {
	return e.Found && e.Status == types.StatusDelivered
}

// Config controls a Reconciler. Zero values select the defaults.
type Config struct {
	Merchant   merchant.Merchant
	Strategies []types.SearchStrategy
	SampleSize int
	BatchSize  int
	BatchDelay time.Duration
	Retry      resilience.RetryConfig
	Sleep      resilience.SleepFunc
}

const (
	defaultSampleSize = 10
	defaultBatchSize  = 20
	defaultBatchDelay = 500 * time.Millisecond
)

// Reconciler runs the strategy cascade. Strategies for one order run one at
// a time; different orders may be searched concurrently.
type Reconciler struct {
	src        Source
	merchant   merchant.Merchant
	strategies []types.SearchStrategy
	sampleSize int
	batchSize  int
	batchDelay time.Duration
	retry      resilience.RetryConfig
	sleep      resilience.SleepFunc
}

// New creates a Reconciler over src.
func New(src Source, cfg Config) *Reconciler {
	r := &Reconciler{
		src:        src,
		merchant:   cfg.Merchant,
		strategies: sortStrategies(cfg.Strategies),
		sampleSize: cfg.SampleSize,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		retry:      cfg.Retry,
		sleep:      cfg.Sleep,
	}
	if r.merchant.Name == "" {
		r.merchant = merchant.StockX
	}
	if len(r.strategies) == 0 {
		r.strategies = DefaultStrategies()
	}
	if r.sampleSize <= 0 {
		r.sampleSize = defaultSampleSize
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.batchDelay < 0 {
		r.batchDelay = 0
	} else if r.batchDelay == 0 {
		r.batchDelay = defaultBatchDelay
	}
	if r.retry.Schedule == nil {
		r.retry.Schedule = resilience.DefaultSchedule
	}
	if r.sleep == nil {
		r.sleep = resilience.Sleep
	}
	if r.retry.Sleep == nil {
		r.retry.Sleep = r.sleep
	}
	return r
}

// FindDeliveryEvidence searches src for delivery evidence on orderNumber
// using the default strategies and merchant.
func FindDeliveryEvidence(ctx context.Context, orderNumber string, src Source, cache *Cache) (Evidence, error) {
	return New(src, Config{}).Find(ctx, orderNumber, cache)
}

// Find runs the strategies in priority order. A success from a narrow
// strategy ends the search; otherwise the search continues and the first
// (highest-priority) success is kept. A failing strategy is logged and
// skipped. The error is non-nil only when ctx ends before any strategy
// succeeded.
func (r *Reconciler) Find(ctx context.Context, orderNumber string, cache *Cache) (Evidence, error) {
	best := Evidence{OrderNumber: orderNumber, Status: types.StatusUnknown}
	if orderNumber == "" {
		return best, nil
	}
	if cache == nil {
		cache = NewCache()
	}

	log := zap.L().With(zap.String("order_number", orderNumber))
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			if best.Found {
				return best, nil
			}
			return best, ctx.Err()
		}

		query, ok := renderQuery(s.Query, orderNumber, r.merchant)
		if !ok {
			continue
		}
		ev, err := r.try(ctx, s, query, orderNumber, cache)
		if err != nil {
			log.Warn("reconcile: strategy failed",
				zap.String("strategy", s.Name),
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		if !ev.Found {
			continue
		}

		log.Debug("reconcile: strategy matched",
			zap.String("strategy", s.Name),
			zap.String("status", string(ev.Status)),
			zap.Int("messages", len(ev.MessageIDs)),
		)
		if !best.Found {
			best = ev
		}
		if s.Priority <= narrowPriority {
			break
		}
	}
	return best, nil
}

// FindAll searches several orders concurrently with at most workers
// searches in flight. Orders whose search fails are absent from the result.
func (r *Reconciler) FindAll(ctx context.Context, orderNumbers []string, workers int, cache *Cache) map[string]Evidence {
	if workers <= 0 {
		workers = 1
	}
	if cache == nil {
		cache = NewCache()
	}

	results := make([]*Evidence, len(orderNumbers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, num := range orderNumbers {
		i, num := i, num
		g.Go(func() error {
			ev, err := r.Find(gctx, num, cache)
			if err != nil {
				zap.L().Warn("reconcile: search abandoned", zap.String("order_number", num), zap.Error(err))
				return nil
			}
			results[i] = &ev
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Evidence, len(orderNumbers))
	for _, ev := range results {
		if ev != nil {
			out[ev.OrderNumber] = *ev
		}
	}
	return out
}

func (r *Reconciler) try(ctx context.Context, s types.SearchStrategy, query, orderNumber string, cache *Cache) (Evidence, error) {
	ids, err := r.search(ctx, query, s.Limit, cache)
	if err != nil {
		return Evidence{}, err
	}
	if len(ids) == 0 {
		return Evidence{}, nil
	}

	var matched []*types.RawMessage
	if s.NeedsFiltering {
		matched = r.filter(ctx, ids, orderNumber)
	} else {
		sample := ids
		if len(sample) > r.sampleSize {
			sample = sample[:r.sampleSize]
		}
		matched = r.confirm(ctx, sample, orderNumber)
	}
	if len(matched) == 0 {
		return Evidence{}, nil
	}

	ev := Evidence{
		OrderNumber:  orderNumber,
		Found:        true,
		StrategyUsed: s.Name,
		Priority:     s.Priority,
		Status:       types.StatusUnknown,
	}
	for _, msg := range matched {
		ev.MessageIDs = append(ev.MessageIDs, msg.ID)
		text, html := message.Normalize(msg)
		body := extract.Text(text, html)
		if classify.IsDeliverySubject(msg.Subject) {
			ev.Status = types.StatusDelivered
		}
		if ev.TrackingNumber == "" {
			if c, ok := tracking.Extract(body, orderNumber); ok {
				ev.TrackingNumber = c.Value
				ev.Carrier = c.Carrier
			}
		}
	}
	return ev, nil
}

func (r *Reconciler) search(ctx context.Context, query string, limit int, cache *Cache) ([]string, error) {
	if ids, ok := cache.get(query, limit); ok {
		return ids, nil
	}

	cfg := r.retry
	cfg.OnRetry = resilience.RetryLogger("gmail", "search")
	ids, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]string, error) {
		return r.src.Search(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	cache.put(query, limit, ids)
	return ids, nil
}

// confirm fetches each sampled message and keeps those mentioning the order.
func (r *Reconciler) confirm(ctx context.Context, ids []string, orderNumber string) []*types.RawMessage {
	var out []*types.RawMessage
	for _, id := range ids {
		if msg, ok := r.fetchMatching(ctx, id, orderNumber); ok {
			out = append(out, msg)
		}
	}
	return out
}

// filter fetches every candidate in batches, pausing between batches.
func (r *Reconciler) filter(ctx context.Context, ids []string, orderNumber string) []*types.RawMessage {
	var out []*types.RawMessage
	for start := 0; start < len(ids); start += r.batchSize {
		if start > 0 {
			if err := r.sleep(ctx, r.batchDelay); err != nil {
				return out
			}
		}
		end := min(start+r.batchSize, len(ids))
		out = append(out, r.confirm(ctx, ids[start:end], orderNumber)...)
	}
	return out
}

func (r *Reconciler) fetchMatching(ctx context.Context, id, orderNumber string) (*types.RawMessage, bool) {
	cfg := r.retry
	cfg.OnRetry = resilience.RetryLogger("gmail", "get")
	msg, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*types.RawMessage, error) {
		return r.src.Get(ctx, id)
	})
	if err != nil {
		zap.L().Debug("reconcile: fetch failed", zap.String("message_id", id), zap.Error(err))
		return nil, false
	}
	if msg == nil {
		return nil, false
	}
	text, html := message.Normalize(msg)
	if strings.Contains(msg.Subject, orderNumber) || strings.Contains(extract.Text(text, html), orderNumber) {
		return msg, true
	}
	return nil, false
}
