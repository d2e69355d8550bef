package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/mailorders/internal/classify"
	"github.com/daviddao/mailorders/internal/consolidate"
	"github.com/daviddao/mailorders/internal/db"
	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/message"
	"github.com/daviddao/mailorders/internal/reconcile"
	"github.com/daviddao/mailorders/internal/resilience"
	"github.com/daviddao/mailorders/internal/types"
)

// deliverySource answers only the narrow delivered-subject query for one order.
type deliverySource struct {
	order string
}

func (s *deliverySource) Search(_ context.Context, query string, _ int) ([]string, error) {
	if strings.Contains(query, `subject:"Order Delivered"`) && strings.Contains(query, s.order) {
		return []string{"d1"}, nil
	}
	return nil, nil
}

func (s *deliverySource) Get(_ context.Context, id string) (*types.RawMessage, error) {
	if id != "d1" {
		return nil, errors.New("not found")
	}
	return &types.RawMessage{
		ID:      "d1",
		From:    "StockX <noreply@stockx.com>",
		Subject: "Order Delivered: Dunk Low Panda",
		Payload: &types.MessagePart{
			MimeType: "text/plain",
			Data:     message.EncodeBase64URL("Order number: " + s.order + "\nYour UPS tracking: 1Z999AA10123456784"),
		},
	}, nil
}

func seedOrder(t *testing.T, s *db.DB, number string, status types.Status) {
	t.Helper()
	p := classify.PurchasesPriorities()
	_, err := s.UpsertOrder(consolidate.Merge(nil, types.ClassifiedEvent{
		OrderRecord: types.OrderRecord{
			Merchant:    "StockX",
			OrderNumber: number,
			MessageID:   "m-" + number,
			EmailDate:   "2025-06-01T10:00:00Z",
		},
		Status:   status,
		Priority: p.Of(status),
	}))
	require.NoError(t, err)
}

func TestReconcileRun_AppliesEvidence(t *testing.T) {
	s, err := db.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	seedOrder(t, s, "75839201", types.StatusShipped)
	seedOrder(t, s, "01-NOPE12345", types.StatusOrdered)

	rc := &reconcileRun{
		store:      s,
		merchants:  merchant.DefaultRegistry(),
		priorities: classify.PurchasesPriorities(),
		workers:    2,
		cache:      reconcile.NewCache(),
		configFor: func(m merchant.Merchant) (reconcile.Config, error) {
			return reconcile.Config{
				Merchant: m,
				Retry:    resilience.RetryConfig{Schedule: []time.Duration{}, Sleep: resilience.NoSleep},
				Sleep:    resilience.NoSleep,
			}, nil
		},
	}

	orders, err := s.OrdersAwaitingDelivery(0)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	results, pending, err := rc.run(context.Background(), "me@example.com", &deliverySource{order: "75839201"}, orders)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "75839201", results[0].OrderNumber)
	assert.Equal(t, "delivered-subject", results[0].Strategy)
	assert.Equal(t, types.StatusDelivered, results[0].Status)
	assert.Equal(t, "1Z999AA10123456784", results[0].TrackingNumber)
	assert.True(t, results[0].Updated)

	require.Len(t, pending, 1)
	assert.Equal(t, "01-NOPE12345", pending[0].OrderNumber)

	o, err := s.GetOrder("75839201")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDelivered, o.Canonical.Status)
	assert.Equal(t, "delivered-subject", o.ReconciledBy)

	waiting, err := s.OrdersAwaitingDelivery(0)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
}

func TestReconcileRun_MerchantFor(t *testing.T) {
	goat := merchant.Merchant{Name: "GOAT", SenderDomains: []string{"goat.com"}}
	rc := &reconcileRun{merchants: merchant.Registry{goat, merchant.StockX}}

	o := &types.StoredOrder{}
	o.Canonical.Merchant = "StockX"
	assert.Equal(t, "StockX", rc.merchantFor(o).Name)

	o.Canonical.Merchant = ""
	assert.Equal(t, "GOAT", rc.merchantFor(o).Name)

	rc.merchants = nil
	assert.Equal(t, "StockX", rc.merchantFor(o).Name)
}
