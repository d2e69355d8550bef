// Package tracking recovers shipment tracking numbers from message bodies.
//
// Carrier patterns are tried in a fixed order and extraction stops at the
// first pattern that yields an accepted match. Later patterns are looser and
// prone to matching prices, order numbers and phone numbers, so precision is
// preferred over recall.
package tracking

import (
	"regexp"
	"strings"

	"github.com/daviddao/mailorders/internal/types"
)

// Carrier names.
const (
	CarrierUPS     = "UPS"
	CarrierFedEx   = "FedEx"
	CarrierUSPS    = "USPS"
	CarrierUnknown = "Unknown"
)

// Pattern is a carrier regex plus an exact-shape validator.
type Pattern struct {
	Name     string
	Carrier  string
	Find     *regexp.Regexp
	Validate *regexp.Regexp
}

// Patterns in priority order.
var Patterns = []Pattern{
	{
		Name:     "UPS",
		Carrier:  CarrierUPS,
		Find:     regexp.MustCompile(`(?i)\b1Z[0-9A-Z]{16}\b`),
		Validate: regexp.MustCompile(`^1Z[0-9A-Z]{16}$`),
	},
	{
		Name:     "FedEx-12",
		Carrier:  CarrierFedEx,
		Find:     regexp.MustCompile(`\b\d{12}\b`),
		Validate: regexp.MustCompile(`^\d{12}$`),
	},
	{
		Name:     "FedEx-14",
		Carrier:  CarrierFedEx,
		Find:     regexp.MustCompile(`\b\d{14}\b`),
		Validate: regexp.MustCompile(`^\d{14}$`),
	},
	{
		Name:     "USPS-Priority",
		Carrier:  CarrierUSPS,
		Find:     regexp.MustCompile(`\b9\d{21}\b`),
		Validate: regexp.MustCompile(`^9\d{21}$`),
	},
	{
		Name:     "USPS-Standard",
		Carrier:  CarrierUSPS,
		Find:     regexp.MustCompile(`\b\d{20}\b`),
		Validate: regexp.MustCompile(`^\d{20}$`),
	},
	{
		Name:     "Generic",
		Carrier:  CarrierUnknown,
		Find:     regexp.MustCompile(`\b\d{10,22}\b`),
		Validate: regexp.MustCompile(`^\d{10,22}$`),
	},
}

var (
	yearShape      = regexp.MustCompile(`^(19|20)\d{2}$`)
	zipShape       = regexp.MustCompile(`^\d{5}$`)
	phoneShape     = regexp.MustCompile(`^\d{10}$`)
	repeatedShape  = regexp.MustCompile(`^(0+|1+)$`)
	expeditedShape = regexp.MustCompile(`^\d{2}-[A-Z0-9]+$`)
	regularShape   = regexp.MustCompile(`^\d{7,9}$`)
	// pricePrefix matches digits that follow a currency sign or thousands
	// separator in the body.
	pricePrefix = regexp.MustCompile(`[$€£]\s*$|\d,$`)
	priceSuffix = regexp.MustCompile(`^[.,]\d{2}\b`)
)

// Scan tests every match of every pattern, in priority order, and stops after
// the first pattern that yields an accepted candidate. The returned slice
// includes rejected candidates for inspection.
func Scan(body, orderNumber string) []types.TrackingCandidate {
	var out []types.TrackingCandidate
	seen := make(map[string]bool)

	for _, p := range Patterns {
		accepted := false
		for _, loc := range p.Find.FindAllStringIndex(body, -1) {
			value := strings.ToUpper(body[loc[0]:loc[1]])
			key := p.Name + ":" + value
			if seen[key] {
				continue
			}
			seen[key] = true

			c := types.TrackingCandidate{Value: value, Pattern: p.Name, Carrier: p.Carrier}
			if !p.Validate.MatchString(value) {
				c.Reason = "shape"
			} else {
				c.Reason = exclusion(value, body[:loc[0]], body[loc[1]:], orderNumber)
			}
			c.Accepted = c.Reason == ""
			out = append(out, c)
			if c.Accepted {
				accepted = true
				break
			}
		}
		if accepted {
			break
		}
	}
	return out
}

// Extract returns the single accepted tracking candidate in body, if any.
func Extract(body, orderNumber string) (types.TrackingCandidate, bool) {
	cands := Scan(body, orderNumber)
	if n := len(cands); n > 0 && cands[n-1].Accepted {
		return cands[n-1], true
	}
	return types.TrackingCandidate{}, false
}

// exclusion returns why value is not a tracking number, or "" to accept it.
func exclusion(value, before, after, orderNumber string) string {
	switch {
	case pricePrefix.MatchString(before) || priceSuffix.MatchString(after):
		return "price"
	case yearShape.MatchString(value):
		return "year"
	case zipShape.MatchString(value):
		return "zip"
	case phoneShape.MatchString(value):
		return "phone"
	case repeatedShape.MatchString(value):
		return "repeated"
	case expeditedShape.MatchString(value) || regularShape.MatchString(value):
		return "order-number"
	}
	if d := orderDigits(orderNumber); len(d) >= 6 && strings.Contains(value, d) {
		return "order-number"
	}
	return ""
}

// orderDigits strips an order number to the digit run that could leak into
// a body as a bare number.
func orderDigits(orderNumber string) string {
	if i := strings.Index(orderNumber, "-"); i >= 0 {
		return orderNumber[i+1:]
	}
	return orderNumber
}
