package extract

import (
	"regexp"
	"strings"

	"github.com/daviddao/mailorders/internal/types"
)

var (
	expeditedOrder = regexp.MustCompile(`^\d{2}-[A-Z0-9]+$`)
	regularOrder   = regexp.MustCompile(`^\d{7,9}$`)
)

// orderNumberLabels are tried in order; the first label followed by a
// well-formed order number wins.
var orderNumberLabels = []*regexp.Regexp{
	regexp.MustCompile(`Order number:\s*#?\s*([A-Z0-9][A-Z0-9-]+)`),
	regexp.MustCompile(`Order Number:\s*#?\s*([A-Z0-9][A-Z0-9-]+)`),
	regexp.MustCompile(`Order:\s*#?\s*([A-Z0-9][A-Z0-9-]+)`),
}

// OrderTypeOf returns the order type implied by an order number's shape.
func OrderTypeOf(number string) (types.OrderType, bool) {
	switch {
	case expeditedOrder.MatchString(number):
		return types.OrderTypeExpedited, true
	case regularOrder.MatchString(number):
		return types.OrderTypeRegular, true
	}
	return "", false
}

// OrderTypeFromSubject guesses the order type before the order number is known.
func OrderTypeFromSubject(subject string) types.OrderType {
	if strings.Contains(strings.ToLower(subject), "xpress") {
		return types.OrderTypeExpedited
	}
	return types.OrderTypeRegular
}

// ApplyOrderNumber sets the order number and re-derives the order type from
// its shape, overriding any earlier guess.
func ApplyOrderNumber(rec *types.OrderRecord, number string) {
	rec.OrderNumber = number
	if t, ok := OrderTypeOf(number); ok {
		rec.OrderType = t
	}
}

func orderNumber(doc *document) (string, bool) {
	for _, re := range orderNumberLabels {
		for _, src := range []string{doc.text, doc.subject} {
			for _, m := range re.FindAllStringSubmatch(src, -1) {
				num := strings.TrimRight(m[1], "-")
				if _, ok := OrderTypeOf(num); ok {
					return num, true
				}
			}
		}
	}
	return "", false
}
