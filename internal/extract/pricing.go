package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/daviddao/mailorders/internal/types"
)

const money = `(?P<cur>[$€£])?\s*(?P<amt>\d{1,3}(?:,\d{3})*\.\d{2}|\d+\.\d{2})`

var (
	purchasePricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Purchase Price:?\s*` + money),
		regexp.MustCompile(`(?i)Item Price:?\s*` + money),
		regexp.MustCompile(`(?im)^\s*Price:?\s*` + money),
	}
	processingFeePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Processing Fee(?:\s*\([^)]*\))?:?\s*` + money),
		regexp.MustCompile(`(?i)Transaction Fee(?:\s*\([^)]*\))?:?\s*` + money),
		regexp.MustCompile(`(?i)Service Fee:?\s*` + money),
	}
	shippingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?P<type>Xpress|Express|Standard|Expedited|Priority)\s+Shipping:?\s*` + money),
		regexp.MustCompile(`(?i)Shipping\s*\((?P<type>[^)]+)\):?\s*` + money),
		regexp.MustCompile(`(?im)^\s*Shipping(?: Fee)?:?\s*` + money),
	}
	freeShippingPattern = regexp.MustCompile(`(?i)(?:(?P<type>Xpress|Express|Standard|Expedited|Priority)\s+)?Shipping:?\s*Free\b`)
	totalPatterns       = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Total Payment:?\s*` + money),
		regexp.MustCompile(`(?i)Order Total:?\s*` + money),
		regexp.MustCompile(`(?i)Total Charged:?\s*` + money),
		regexp.MustCompile(`(?im)^\s*Total:?\s*` + money),
	}
)

var currencyCodes = map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}

// amount is one matched price.
type amount struct {
	value    float64
	currency string
	label    string
}

func findAmount(text string, patterns []*regexp.Regexp) (amount, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var a amount
		raw := ""
		for i, name := range re.SubexpNames() {
			switch name {
			case "cur":
				a.currency = currencyCodes[m[i]]
			case "amt":
				raw = m[i]
			case "type":
				a.label = strings.TrimSpace(m[i])
			}
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}
		a.value = v
		return a, true
	}
	return amount{}, false
}

// applyPricing runs the independent price scans. Each is optional.
func applyPricing(rec *types.OrderRecord, doc *document) {
	var currency string
	note := func(a amount) {
		if currency == "" && a.currency != "" {
			currency = a.currency
		}
	}

	if a, ok := findAmount(doc.text, totalPatterns); ok {
		rec.TotalAmount = a.value
		note(a)
	}
	if a, ok := findAmount(doc.text, purchasePricePatterns); ok {
		rec.PurchasePrice = a.value
		note(a)
	}
	if a, ok := findAmount(doc.text, processingFeePatterns); ok {
		rec.ProcessingFee = a.value
		note(a)
	}
	if a, ok := findAmount(doc.text, shippingPatterns); ok {
		rec.ShippingFee = a.value
		rec.ShippingType = a.label
		note(a)
	} else if m := freeShippingPattern.FindStringSubmatch(doc.text); m != nil {
		rec.ShippingFee = 0
		rec.ShippingType = strings.TrimSpace(m[freeShippingPattern.SubexpIndex("type")])
		if rec.ShippingType == "" {
			rec.ShippingType = "Free"
		}
	}

	if currency == "" && (rec.TotalAmount > 0 || rec.PurchasePrice > 0) {
		currency = "USD"
	}
	rec.Currency = currency
}
