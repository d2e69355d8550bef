package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daviddao/mailorders/internal/types"
)

func TestAccountLabel(t *testing.T) {
	assert.Equal(t, "example", AccountLabel("user@example.com"))
	assert.Equal(t, "localhost", AccountLabel("me@localhost"))
	assert.Equal(t, "plain", AccountLabel("plain"))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"2025-06-10T11:59:30Z", "just now"},
		{"2025-06-10T11:15:00Z", "45m ago"},
		{"2025-06-10T06:00:00Z", "6h ago"},
		{"2025-06-07T12:00:00Z", "3d ago"},
		{"2025-05-01T12:00:00Z", "May 1"},
		{"2025-06-14", "Jun 14"},
		{"not a date at all", "not a date"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, timeAgo(tt.in, now), tt.in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "Nike Ai...", Truncate("Nike Air Force 1", 10))
	assert.Equal(t, "Ni", Truncate("Nike", 2))
	assert.Equal(t, "Ünï...", Truncate("Ünïcödé name", 6))
}

func TestMoney(t *testing.T) {
	assert.Empty(t, Money(0, "USD"))
	assert.Equal(t, "138.00 USD", Money(138, "USD"))
	assert.Equal(t, "7.50", Money(7.5, ""))
}

func TestStatusLabel(t *testing.T) {
	assert.Contains(t, StatusLabel(types.StatusDelivered), "DELIVERED")
	assert.Contains(t, StatusLabel(types.Status("Lost")), "LOST")
	assert.Contains(t, StatusDot(types.Status("")), "·")
}

func TestOrderLine(t *testing.T) {
	o := &types.StoredOrder{ConsolidatedOrder: types.ConsolidatedOrder{
		OrderNumber: "01-ABCDEFGHJK",
		Canonical: types.ClassifiedEvent{
			OrderRecord: types.OrderRecord{
				ProductName: "Nike Air Force 1",
				Size:        "10.5",
				TotalAmount: 138,
				Currency:    "USD",
			},
			Status: types.StatusShipped,
		},
	}}
	line := OrderLine(o)
	assert.Contains(t, line, "01-ABCDEFGHJK")
	assert.Contains(t, line, "SHIPPED")
	assert.Contains(t, line, "Nike Air Force 1")
	assert.Contains(t, line, "sz 10.5")
	assert.Contains(t, line, "138.00 USD")
}

func TestOrderDetail(t *testing.T) {
	o := &types.StoredOrder{
		ConsolidatedOrder: types.ConsolidatedOrder{
			OrderNumber: "75839201",
			Canonical: types.ClassifiedEvent{
				OrderRecord: types.OrderRecord{
					Merchant:       "StockX",
					ProductName:    "Dunk Low Panda",
					TrackingNumber: "1Z999AA10123456784",
					Carrier:        "UPS",
				},
				Status: types.StatusDelivered,
			},
			StatusesSeen: []types.Status{types.StatusOrdered, types.StatusDelivered},
			MessageCount: 2,
		},
		ReconciledBy: "delivered-subject",
	}
	history := []types.HistoryEntry{
		{Status: types.StatusOrdered, Subject: "Order Confirmed: Dunk Low Panda"},
		{Status: types.StatusDelivered, Subject: "Order Delivered: Dunk Low Panda"},
	}

	var buf bytes.Buffer
	OrderDetail(&buf, o, history)
	out := buf.String()
	assert.Contains(t, out, "75839201")
	assert.Contains(t, out, "StockX")
	assert.Contains(t, out, "1Z999AA10123456784")
	assert.Contains(t, out, "Ordered, Delivered")
	assert.Contains(t, out, "delivered-subject")
	assert.Contains(t, out, "┌─")
	assert.Contains(t, out, "└─")
	assert.Contains(t, out, "Order Delivered: Dunk Low Panda")
	assert.NotContains(t, out, "Variant:")
}
