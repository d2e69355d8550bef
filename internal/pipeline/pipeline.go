// Package pipeline wires normalization, extraction, tracking, classification
// and consolidation into the operations callers use.
package pipeline

import (
	"go.uber.org/zap"

	"github.com/daviddao/mailorders/internal/classify"
	"github.com/daviddao/mailorders/internal/consolidate"
	"github.com/daviddao/mailorders/internal/extract"
	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/message"
	"github.com/daviddao/mailorders/internal/tracking"
	"github.com/daviddao/mailorders/internal/types"
)

// Options configures a Pipeline. Zero values select the built-in merchant,
// the default category table and the purchases priority profile.
type Options struct {
	Merchants  merchant.Registry
	Table      *classify.Table
	Priorities classify.Priorities
}

// Pipeline turns raw messages into classified events. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	merchants  merchant.Registry
	extractor  *extract.Extractor
	classifier *classify.Classifier
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	merchants := opts.Merchants
	if len(merchants) == 0 {
		merchants = merchant.DefaultRegistry()
	}
	return &Pipeline{
		merchants:  merchants,
		extractor:  extract.New(merchants),
		classifier: classify.New(opts.Table, opts.Priorities, merchants),
	}
}

// Merchants returns the registry in use.
func (p *Pipeline) Merchants() merchant.Registry {
	return p.merchants
}

// Priorities returns the status ranking in use.
func (p *Pipeline) Priorities() classify.Priorities {
	return p.classifier.Priorities()
}

// Extract builds the order record for raw. It returns nil for sale
// notifications, which are never orders.
func (p *Pipeline) Extract(raw *types.RawMessage) *types.OrderRecord {
	if raw == nil {
		return nil
	}
	if classify.IsSaleNotification(raw.Subject) {
		zap.L().Debug("pipeline: sale notification filtered",
			zap.String("message_id", raw.ID),
			zap.String("subject", raw.Subject),
		)
		return nil
	}

	text, html := message.Normalize(raw)
	rec := p.extractor.Extract(raw, text, html)
	if rec.Merchant == "" {
		return rec
	}

	rec.ShippingStatus = types.ShippingOrdered
	if c, ok := tracking.Extract(extract.Text(text, html), rec.OrderNumber); ok {
		rec.TrackingNumber = c.Value
		rec.Carrier = c.Carrier
		rec.ShippingStatus = types.ShippingShipped
	}
	return rec
}

// Classify assigns a status and priority to rec. It returns false for sale
// notifications.
func (p *Pipeline) Classify(rec *types.OrderRecord) (types.ClassifiedEvent, bool) {
	return p.classifier.Classify(rec)
}

// Process extracts and classifies raw. It returns false when the message is
// filtered or carries no order number.
func (p *Pipeline) Process(raw *types.RawMessage) (types.ClassifiedEvent, bool) {
	rec := p.Extract(raw)
	if !rec.IsPurchaseSignal() {
		return types.ClassifiedEvent{}, false
	}
	return p.Classify(rec)
}

// Consolidate groups events into one canonical order per order number.
func (p *Pipeline) Consolidate(events []types.ClassifiedEvent) map[string]*types.ConsolidatedOrder {
	return consolidate.Consolidate(events)
}
