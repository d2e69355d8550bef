package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/types"
)

func testClassifier() *Classifier {
	reg := merchant.Registry{{Name: "StockX", SenderDomains: []string{"stockx.com", "merchant.example"}}}
	return New(nil, nil, reg)
}

func TestClassify_TableMatch(t *testing.T) {
	c := testClassifier()
	p := PurchasesPriorities()

	tests := []struct {
		subject string
		want    types.Status
	}{
		{"Order Confirmed: Nike Air Force 1 (Size 10.5)", types.StatusOrdered},
		{"ORDER SHIPPED: Jordan 4 Retro", types.StatusShipped},
		{"Order Delayed: Yeezy Slide", types.StatusDelayed},
		{"Your order has been cancelled", types.StatusCanceled},
		{"Order Delivered: Dunk Low", types.StatusDelivered},
		{"A newsletter", types.StatusOrdered},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			ev, ok := c.Classify(&types.OrderRecord{Subject: tt.subject, Sender: "noreply@stockx.com"})
			require.True(t, ok)
			assert.Equal(t, tt.want, ev.Status)
			assert.Equal(t, p.Of(tt.want), ev.Priority)
		})
	}
}

func TestClassify_DefaultIsLowest(t *testing.T) {
	ev, ok := testClassifier().Classify(&types.OrderRecord{Subject: "Weekly drops"})
	require.True(t, ok)
	assert.Equal(t, types.StatusOrdered, ev.Status)
	assert.Equal(t, 1, ev.Priority)
	assert.Equal(t, "default", ev.Category)
}

func TestClassify_DeliveryOverride(t *testing.T) {
	c := testClassifier()

	ev, ok := c.Classify(&types.OrderRecord{
		Subject: "Xpress Ship Order Delivered: Air Jordan 1",
		Sender:  "StockX <noreply@stockx.com>",
	})
	require.True(t, ok)
	assert.Equal(t, types.StatusDelivered, ev.Status)
	assert.Equal(t, PurchasesPriorities()[types.StatusDelivered], ev.Priority)

	// Same subject from an unknown sender falls back to the table.
	ev, ok = c.Classify(&types.OrderRecord{
		Subject: "Xpress Ship Order Delivered: Air Jordan 1",
		Sender:  "someone@gmail.com",
	})
	require.True(t, ok)
	assert.Equal(t, types.StatusShipped, ev.Status)
}

func TestClassify_DeliveryEmoji(t *testing.T) {
	ev, ok := testClassifier().Classify(&types.OrderRecord{
		Subject: "📬 Your Jordan 1 is here",
		Sender:  "StockX <noreply@stockx.com>",
	})
	require.True(t, ok)
	assert.Equal(t, types.StatusDelivered, ev.Status)
}

func TestClassify_ForwardedMerchantMailKeepsTableStatus(t *testing.T) {
	ev, ok := testClassifier().Classify(&types.OrderRecord{
		Subject:  "Fwd: StockX Xpress Ship Order Delivered: Air Jordan 1",
		Sender:   "friend@gmail.com",
		Merchant: "StockX",
	})
	require.True(t, ok)
	assert.Equal(t, types.StatusShipped, ev.Status)
	assert.NotEqual(t, "delivered", ev.Category)
}

func TestClassify_SaleNotificationDiscarded(t *testing.T) {
	_, ok := testClassifier().Classify(&types.OrderRecord{
		Subject:     "You Sold Your Item: Air Jordan 1",
		Sender:      "noreply@stockx.com",
		OrderNumber: "12345678",
	})
	assert.False(t, ok)

	_, ok = testClassifier().Classify(nil)
	assert.False(t, ok)
}

func TestClassify_SyncProfile(t *testing.T) {
	p, err := PrioritiesFor(ProfileSync)
	require.NoError(t, err)
	c := New(nil, p, nil)

	delivered, _ := c.Classify(&types.OrderRecord{Subject: "Order Delivered: x"})
	canceled, _ := c.Classify(&types.OrderRecord{Subject: "Order Canceled: x"})
	assert.Greater(t, delivered.Priority, canceled.Priority)

	_, err = PrioritiesFor("bogus")
	assert.Error(t, err)
}

func TestTable_OrderPreserved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.yaml")
	yaml := `
categories:
  - name: late
    status: Delayed
    color: orange
    patterns: ["order"]
  - name: confirmed
    status: Ordered
    color: gray
    patterns: ["order confirmed"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	cats := table.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, "late", cats[0].Name)

	// First category wins even though the second is more specific.
	ev, ok := New(table, nil, nil).Classify(&types.OrderRecord{Subject: "Order Confirmed: x"})
	require.True(t, ok)
	assert.Equal(t, types.StatusDelayed, ev.Status)
}

func TestTable_Invalid(t *testing.T) {
	_, err := NewTable([]Category{{Name: "x", Status: "Lost", Patterns: []string{"a"}}})
	assert.Error(t, err)

	_, err = NewTable([]Category{{Name: "x", Status: types.StatusShipped}})
	assert.Error(t, err)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCategoriesReturnsCopy(t *testing.T) {
	table := DefaultTable()
	cats := table.Categories()
	cats[0].Patterns[0] = "mutated"
	assert.NotEqual(t, "mutated", table.Categories()[0].Patterns[0])
}
