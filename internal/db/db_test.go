package db

import (
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/mailorders/internal/classify"
	"github.com/daviddao/mailorders/internal/consolidate"
	"github.com/daviddao/mailorders/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), Dir, File))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ev(order, id string, status types.Status, date string) types.ClassifiedEvent {
	p := classify.PurchasesPriorities()
	return types.ClassifiedEvent{
		OrderRecord: types.OrderRecord{
			OrderNumber: order,
			MessageID:   id,
			ProductName: "Dunk Low",
			Subject:     "Order " + string(status),
			EmailDate:   date,
		},
		Status:   status,
		Priority: p.Of(status),
	}
}

func TestUpsertOrder_MergesWithoutDowngrade(t *testing.T) {
	store := openTestDB(t)

	first := consolidate.Consolidate([]types.ClassifiedEvent{
		ev("75839201", "m1", types.StatusOrdered, "2025-06-01T10:00:00Z"),
		ev("75839201", "m2", types.StatusDelivered, "2025-06-08T10:00:00Z"),
	})["75839201"]
	_, err := store.UpsertOrder(first)
	require.NoError(t, err)

	later := consolidate.Consolidate([]types.ClassifiedEvent{
		ev("75839201", "m3", types.StatusShipped, "2025-06-04T10:00:00Z"),
	})["75839201"]
	got, err := store.UpsertOrder(later)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDelivered, got.Canonical.Status)

	stored, err := store.GetOrder("75839201")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDelivered, stored.Canonical.Status)
	assert.Equal(t, "m2", stored.Canonical.MessageID)
	assert.Equal(t, []types.Status{types.StatusOrdered, types.StatusDelivered, types.StatusShipped}, stored.StatusesSeen)
	assert.Equal(t, 3, stored.MessageCount)
	assert.Equal(t, []string{"m1", "m2", "m3"}, stored.MessageIDs)
	assert.NotEmpty(t, stored.CreatedAt)
	assert.NotEmpty(t, stored.UpdatedAt)

	again, err := store.UpsertOrder(later)
	require.NoError(t, err)
	assert.Equal(t, 3, again.MessageCount)
}

func TestGetOrder_NotFound(t *testing.T) {
	_, err := openTestDB(t).GetOrder("nope")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestListOrdersAndCounts(t *testing.T) {
	store := openTestDB(t)
	for _, e := range []types.ClassifiedEvent{
		ev("1000001", "a", types.StatusShipped, "2025-06-01T10:00:00Z"),
		ev("1000002", "b", types.StatusDelivered, "2025-06-03T10:00:00Z"),
		ev("1000003", "c", types.StatusCanceled, "2025-06-02T10:00:00Z"),
		ev("1000004", "d", types.StatusOrdered, "2025-05-30T10:00:00Z"),
	} {
		_, err := store.UpsertOrder(consolidate.Merge(nil, e))
		require.NoError(t, err)
	}

	all, err := store.ListOrders(OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "1000002", all[0].OrderNumber)

	shipped, err := store.ListOrders(OrderFilter{Status: types.StatusShipped})
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	assert.Equal(t, "1000001", shipped[0].OrderNumber)

	waiting, err := store.OrdersAwaitingDelivery(0)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, "1000004", waiting[0].OrderNumber)
	assert.Equal(t, "1000001", waiting[1].OrderNumber)

	counts, err := store.StatusCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.StatusCanceled])
	assert.Equal(t, 4, store.OrderCount())
}

func TestApplyDelivery(t *testing.T) {
	store := openTestDB(t)
	_, err := store.UpsertOrder(consolidate.Merge(nil, ev("01-ABC123", "m1", types.StatusShipped, "")))
	require.NoError(t, err)

	changed, err := store.ApplyDelivery("01-ABC123", DeliveryUpdate{
		Strategy:       "merchant-order",
		Priority:       4,
		TrackingNumber: "1Z999AA10123456784",
		Carrier:        "UPS",
	})
	require.NoError(t, err)
	assert.True(t, changed)

	o, err := store.GetOrder("01-ABC123")
	require.NoError(t, err)
	assert.Equal(t, types.StatusShipped, o.Canonical.Status)
	assert.Equal(t, "1Z999AA10123456784", o.Canonical.TrackingNumber)
	assert.Empty(t, o.ReconciledBy)

	changed, err = store.ApplyDelivery("01-ABC123", DeliveryUpdate{Strategy: "delivered-subject", Delivered: true, Priority: 4})
	require.NoError(t, err)
	assert.True(t, changed)

	o, err = store.GetOrder("01-ABC123")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDelivered, o.Canonical.Status)
	assert.Equal(t, "delivered-subject", o.ReconciledBy)
	assert.Contains(t, o.StatusesSeen, types.StatusDelivered)

	changed, err = store.ApplyDelivery("01-ABC123", DeliveryUpdate{Strategy: "x", Delivered: true, Priority: 4})
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.ApplyDelivery("missing", DeliveryUpdate{Delivered: true})
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestHistory(t *testing.T) {
	store := openTestDB(t)
	require.NoError(t, store.RecordEvent(ev("01-ABC", "m2", types.StatusShipped, "2025-06-04T10:00:00Z")))
	require.NoError(t, store.RecordEvent(ev("01-ABC", "m1", types.StatusOrdered, "2025-06-01T10:00:00Z")))
	require.NoError(t, store.RecordEvent(ev("01-ABC", "m1", types.StatusOrdered, "2025-06-01T10:00:00Z")))
	require.NoError(t, store.RecordEvent(ev("", "m9", types.StatusOrdered, "")))

	h, err := store.History("01-ABC")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "m1", h[0].MessageID)
	assert.Equal(t, types.StatusShipped, h[1].Status)
}

func TestProcessedMessages(t *testing.T) {
	store := openTestDB(t)
	assert.False(t, store.MessageExists("m1"))
	assert.Empty(t, store.LatestEmailDate("me@example.com"))

	require.NoError(t, store.MarkProcessed("m1", "me@example.com", "01-ABC", OutcomeOrder, "2025-06-01T10:00:00Z"))
	require.NoError(t, store.MarkProcessed("m2", "me@example.com", "", OutcomeFiltered, "2025-06-03T10:00:00Z"))

	assert.True(t, store.MessageExists("m1"))
	assert.Equal(t, "2025-06-03T10:00:00Z", store.LatestEmailDate("me@example.com"))
}

func TestSyncRuns(t *testing.T) {
	store := openTestDB(t)
	id, err := store.StartRun("me@example.com")
	require.NoError(t, err)
	require.Len(t, id, 36)

	require.NoError(t, store.FinishRun(&types.SyncResult{RunID: id, Account: "me@example.com", Scanned: 5, Extracted: 2, Orders: 1}))

	runs, err := store.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].RunID)
	assert.Equal(t, 5, runs[0].Scanned)
	assert.Equal(t, 1, runs[0].Orders)
	assert.NotEmpty(t, runs[0].FinishedAt)
}
