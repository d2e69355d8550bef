package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/daviddao/mailorders/internal/types"
)

const (
	weekday  = `(?:(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*,?\s+)?`
	dateExpr = `((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(?:,?\s+\d{4})?|\d{1,2}/\d{1,2}/\d{2,4})`
	dateSep  = `\s*(?:-|–|—|to)\s*`
)

const deliveryLabel = `(?i)(?:Estimated Delivery|Expected Delivery|Estimated Arrival|Delivery Estimate|Arrives)(?: Date)?:?\s*`

var (
	deliveryWindow = regexp.MustCompile(deliveryLabel + weekday + dateExpr + dateSep + weekday + dateExpr)
	deliverySingle = regexp.MustCompile(deliveryLabel + weekday + dateExpr)
	purchaseDate   = regexp.MustCompile(`(?i)(?:Order Date|Purchase Date|Date Ordered|Ordered On|Placed On|Order Placed):?\s*` + weekday + dateExpr)
)

var dateLayouts = []string{
	"Jan 2, 2006", "January 2, 2006", "Jan 2 2006", "January 2 2006",
	"1/2/2006", "01/02/2006", "1/2/06", "01/02/06",
}

var yearlessLayouts = []string{"Jan 2", "January 2"}

var dateSpace = regexp.MustCompile(`\s+`)

// applyDates fills the delivery window and purchase date. A window with a
// single date sets only its end.
func applyDates(rec *types.OrderRecord, doc *document) {
	if m := deliveryWindow.FindStringSubmatch(doc.text); m != nil {
		rec.EstimatedDeliveryStart = normalizeDate(m[1], doc.ref, true)
		rec.EstimatedDeliveryEnd = normalizeDate(m[2], doc.ref, true)
	} else if m := deliverySingle.FindStringSubmatch(doc.text); m != nil {
		rec.EstimatedDeliveryEnd = normalizeDate(m[1], doc.ref, true)
	}

	if m := purchaseDate.FindStringSubmatch(doc.text); m != nil {
		rec.PurchaseDate = normalizeDate(m[1], doc.ref, false)
	}
}

// normalizeDate parses s as YYYY-MM-DD. A date without a year takes the year
// of ref; forward dates that would land well before ref roll into the next
// year and past dates that would land after ref roll back. Unparseable input
// is returned trimmed.
func normalizeDate(s string, ref time.Time, forward bool) string {
	clean := strings.TrimSpace(s)
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.Replace(clean, "Sept ", "Sep ", 1)
	clean = dateSpace.ReplaceAllString(clean, " ")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, clean); err == nil {
			return t.Format("2006-01-02")
		}
	}

	for _, layout := range yearlessLayouts {
		t, err := time.Parse(layout, clean)
		if err != nil {
			continue
		}
		t = time.Date(ref.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
		switch {
		case forward && t.Before(day.AddDate(0, -2, 0)):
			t = t.AddDate(1, 0, 0)
		case !forward && t.After(day.AddDate(0, 0, 1)):
			t = t.AddDate(-1, 0, 0)
		}
		return t.Format("2006-01-02")
	}
	return strings.TrimSpace(s)
}
