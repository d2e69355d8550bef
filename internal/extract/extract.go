// Package extract turns normalized notification bodies into order records.
//
// Every field has its own ordered list of patterns and the first usable
// match wins. A field that matches nothing keeps its zero value and never
// blocks the others; marketplace templates differ by order type, email type
// and over time, so no single parser is relied on.
package extract

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/message"
	"github.com/daviddao/mailorders/internal/types"
)

// Extractor applies the field cascades for recognized merchants.
type Extractor struct {
	merchants merchant.Registry
	now       func() time.Time
}

// New creates an Extractor. An empty registry selects the built-in merchant.
func New(merchants merchant.Registry) *Extractor {
	if len(merchants) == 0 {
		merchants = merchant.DefaultRegistry()
	}
	return &Extractor{merchants: merchants, now: time.Now}
}

// document is the normalized view every field function reads.
type document struct {
	subject string
	text    string
	html    string
	ref     time.Time
}

// Text returns the searchable text of a message: the plain body followed by
// the HTML body converted to text and its link targets.
func Text(text, html string) string {
	parts := []string{strings.TrimSpace(text)}
	if html != "" {
		parts = append(parts, message.HTMLToText(html))
		parts = append(parts, message.Links(html)...)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Extract builds an OrderRecord from raw's headers and its normalized
// bodies. Unrecognized senders yield a record with metadata only.
func (e *Extractor) Extract(raw *types.RawMessage, text, html string) *types.OrderRecord {
	rec := &types.OrderRecord{
		Subject:   raw.Subject,
		Sender:    raw.From,
		MessageID: raw.ID,
	}
	ref, ok := parseEmailDate(raw.Date)
	if ok {
		rec.EmailDate = ref.UTC().Format(time.RFC3339)
	} else {
		rec.EmailDate = raw.Date
		ref = e.now()
	}

	m, ok := e.merchants.Detect(raw.From, raw.Subject)
	if !ok {
		zap.L().Debug("extract: sender not a known merchant",
			zap.String("message_id", raw.ID),
			zap.String("from", raw.From),
		)
		return rec
	}
	rec.Merchant = m.Name

	doc := &document{
		subject: raw.Subject,
		text:    Text(text, html),
		html:    html,
		ref:     ref,
	}

	rec.OrderType = OrderTypeFromSubject(raw.Subject)
	if num, ok := orderNumber(doc); ok {
		ApplyOrderNumber(rec, num)
	}

	rawName, _ := productTitle(doc)
	rec.ProductName = CleanProductName(rawName)
	rec.ProductVariant = productVariant(rec.ProductName)
	rec.Size = size(doc, rawName)
	rec.StyleID, _ = first(doc.text, styleIDPatterns)
	rec.StyleID = strings.ToUpper(rec.StyleID)
	rec.Condition, _ = first(doc.text, conditionPatterns)

	applyPricing(rec, doc)
	applyDates(rec, doc)

	if html != "" {
		rec.ProductImageURL = productImage(html, rec.ProductName, m)
	}

	return rec
}

// fieldFunc is one attempt at a field value.
type fieldFunc func(doc *document) (string, bool)

// firstOf returns the first successful field function's value.
func firstOf(doc *document, funcs ...fieldFunc) (string, bool) {
	for _, f := range funcs {
		if v, ok := f(doc); ok {
			return v, true
		}
	}
	return "", false
}

// first returns the first capture group of the first matching pattern.
func first(s string, patterns []*regexp.Regexp) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func parseEmailDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
