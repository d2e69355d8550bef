package extract

import (
	"regexp"
	"strings"
)

// productPatterns find the raw product title. Shipping wording precedes
// confirmation wording because shipping emails often lack the
// "Order Confirmed:" label.
var productPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:xpress ship )?order shipped:\s*(.+)`),
	regexp.MustCompile(`(?i)your (?:order|item) (?:has shipped|is on its way)\s*[:!-]\s*(.+)`),
	regexp.MustCompile(`(?i)(?:xpress ship )?order delivered:\s*(.+)`),
	regexp.MustCompile(`(?i)order delayed:\s*(.+)`),
	regexp.MustCompile(`(?i)(?:xpress ship )?order confirmed:\s*(.+)`),
	regexp.MustCompile(`(?i)order cancel(?:l)?ed:\s*(.+)`),
	regexp.MustCompile(`(?i)(?:you bought|purchase confirmed):\s*(.+)`),
	regexp.MustCompile(`(?im)^\s*(?:product|item)(?: name)?:\s*(.+)$`),
}

// nameSizeSuffixes are stripped from a raw title to get the product name.
var nameSizeSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*\((?:size|sz\.?|us)\b[^)]*\)\s*$`),
	regexp.MustCompile(`(?i)\s*[-,|]\s*(?:size|sz\.?)\s*:?\s*\S+\s*$`),
	regexp.MustCompile(`(?i)\s+size\s+\d{1,2}(?:\.5)?[A-Z]?\s*$`),
}

var colorWords = regexp.MustCompile(`(?i)\b(black|white|red|blue|green|grey|gray|pink|brown|tan|cream|olive|navy|purple|orange|yellow|beige|sail|bone|volt|gold|silver|teal|maroon|burgundy)\b`)

var styleIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Style(?: ID| Code| #)?:?\s*([A-Z0-9]{2,10}-[A-Z0-9]{2,5})\b`),
	regexp.MustCompile(`(?i)SKU:?\s*([A-Z0-9]{2,10}-[A-Z0-9]{2,5})\b`),
}

var conditionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Condition:?\s*(Brand New|New|Used|Pre-owned|Deadstock)\b`),
}

func productTitle(doc *document) (string, bool) {
	for _, re := range productPatterns {
		for _, src := range []string{doc.subject, doc.text} {
			if m := re.FindStringSubmatch(src); m != nil {
				if v := strings.TrimSpace(m[1]); v != "" {
					return v, true
				}
			}
		}
	}
	return "", false
}

// CleanProductName strips size suffixes and trailing punctuation from a raw
// product title.
func CleanProductName(raw string) string {
	name := strings.TrimSpace(raw)
	for _, re := range nameSizeSuffixes {
		name = re.ReplaceAllString(name, "")
	}
	return strings.TrimRight(strings.TrimSpace(name), " !.,-|")
}

// productVariant collects color words from the product name.
func productVariant(name string) string {
	var colors []string
	seen := make(map[string]bool)
	for _, c := range colorWords.FindAllString(name, -1) {
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		colors = append(colors, c)
	}
	return strings.Join(colors, "/")
}
