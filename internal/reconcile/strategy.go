package reconcile

import (
	"sort"
	"strings"

	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/types"
)

// narrowPriority is the weakest priority that still ends the search early.
const narrowPriority = 3

// DefaultStrategies runs from narrow, high-confidence queries to a broad
// sweep of recent merchant mail that must be content-filtered.
func DefaultStrategies() []types.SearchStrategy {
	return []types.SearchStrategy{
		{Name: "delivered-subject", Priority: 1, Query: `{from} subject:"Order Delivered" "{order}"`, Limit: 10},
		{Name: "xpress-delivered-subject", Priority: 2, Query: `{from} subject:"Xpress Ship Order Delivered" "{order}"`, Limit: 10},
		{Name: "delivered-keyword", Priority: 3, Query: `{from} subject:delivered "{order}"`, Limit: 10},
		{Name: "merchant-order", Priority: 4, Query: `{from} "{order}"`, Limit: 20},
		{Name: "order-only", Priority: 5, Query: `"{order}"`, Limit: 20},
		{Name: "partial-order", Priority: 6, Query: `"{partial}"`, Limit: 20},
		{Name: "recent-merchant", Priority: 7, Query: `{from} newer_than:90d`, Limit: 100, NeedsFiltering: true},
	}
}

// sortStrategies returns a copy ordered by priority. Equal priorities keep
// their configured order.
func sortStrategies(in []types.SearchStrategy) []types.SearchStrategy {
	out := make([]types.SearchStrategy, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// PartialOrderNumber returns the distinctive tail of an order number: the
// part after the dash for expedited numbers, else the last six characters.
func PartialOrderNumber(orderNumber string) string {
	if i := strings.LastIndex(orderNumber, "-"); i >= 0 && i < len(orderNumber)-1 {
		return orderNumber[i+1:]
	}
	if len(orderNumber) > 6 {
		return orderNumber[len(orderNumber)-6:]
	}
	return ""
}

// renderQuery fills a strategy template. It returns false when the template
// needs a value that does not exist for this order.
func renderQuery(tmpl, orderNumber string, m merchant.Merchant) (string, bool) {
	from := m.FromQuery()
	partial := PartialOrderNumber(orderNumber)
	if strings.Contains(tmpl, "{from}") && from == "" {
		return "", false
	}
	if strings.Contains(tmpl, "{partial}") && partial == "" {
		return "", false
	}
	q := strings.NewReplacer("{from}", from, "{order}", orderNumber, "{partial}", partial).Replace(tmpl)
	return strings.Join(strings.Fields(q), " "), true
}
