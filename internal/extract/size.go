package extract

import (
	"regexp"
	"strings"
)

// sizePattern is one body-level size attempt.
type sizePattern struct {
	re     *regexp.Regexp
	inHTML bool
}

const sizeToken = `(\d{1,2}(?:\.5)?[A-Z]?)`

// sizePatterns run from most specific (a "Size:" label inside a list item)
// to least specific (an unlabelled letter size).
var sizePatterns = []sizePattern{
	{re: regexp.MustCompile(`(?i)<li[^>]*>\s*Size:\s*([^<]+)</li>`), inHTML: true},
	{re: regexp.MustCompile(`(?i)<li[^>]*>\s*<(?:b|strong|span)[^>]*>\s*Size:?\s*</(?:b|strong|span)>\s*([^<]+)</li>`), inHTML: true},
	{re: regexp.MustCompile(`(?i)>\s*Size:?\s*</(?:td|th|span|strong|b|p)>\s*<(?:td|span|p|strong|b)[^>]*>\s*([^<]+)<`), inHTML: true},
	{re: regexp.MustCompile(`(?i)<(?:span|td|p|div)[^>]*>\s*Size:\s*([^<]+)</`), inHTML: true},
	{re: regexp.MustCompile(`(?im)^\s*Size:\s*(?:US\s*)?([^\n]+?)\s*$`)},
	{re: regexp.MustCompile(`(?i)\bU\.?S\.?\s+(?:Men's\s+|Women's\s+|M\s+|W\s+)?Size:?\s*` + sizeToken + `\b`)},
	{re: regexp.MustCompile(`(?i)\bSize:\s*(?:US\s*)?([MW]?\s?\d{1,2}(?:\.5)?[A-Z]?)\b`)},
	{re: regexp.MustCompile(`(?i)\bSize\s+` + sizeToken + `\b`)},
	{re: regexp.MustCompile(`(?i)\bSz\.?\s*(\d{1,2}(?:\.5)?)\b`)},
	{re: regexp.MustCompile(`(?i)\bSize:?\s*(XXS|XS|S|M|L|XL|XXL|XXXL|2XL|3XL|OS|One Size)\b`)},
}

// looseSizePattern is a bare "US 10.5" token. It is tried only after the
// product title, and a number followed by a dash or digit is a range, not a size.
var looseSizePattern = regexp.MustCompile(`(?i)\bUS\s+(?:[MW]\s*)?(\d{1,2}(?:\.5)?)(?:$|[^\d.\-–])`)

// nameSizePatterns read a size out of the raw product title.
var nameSizePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\((?:size|sz\.?)\s*:?\s*(?:US\s*)?([^)]+)\)`),
	regexp.MustCompile(`(?i)\(US\s*([MW]?\s*\d{1,2}(?:\.5)?[A-Z]?)\)`),
	regexp.MustCompile(`(?i)[-,|]\s*(?:size|sz\.?)\s*:?\s*(\S+)\s*$`),
	regexp.MustCompile(`(?i)\bsize\s+(\d{1,2}(?:\.5)?[A-Z]?)\s*$`),
}

// sizePlaceholders are values templates emit when no size applies.
var sizePlaceholders = map[string]bool{
	"n/a": true, "na": true, "-": true, "--": true, "tbd": true,
	"unknown": true, "none": true, "size": true, "select": true,
	"select size": true, "us": true, "default": true,
}

const maxSizeLen = 15

// size runs the labelled body cascade first, then the product title, then a
// bare size token in the body.
func size(doc *document, rawName string) string {
	v, _ := firstOf(doc,
		func(d *document) (string, bool) { return bodySize(d) },
		func(d *document) (string, bool) { return nameSize(rawName) },
		func(d *document) (string, bool) { return looseSize(d.text) },
	)
	return v
}

func bodySize(doc *document) (string, bool) {
	for _, p := range sizePatterns {
		src := doc.text
		if p.inHTML {
			src = doc.html
		}
		if src == "" {
			continue
		}
		for _, m := range p.re.FindAllStringSubmatch(src, -1) {
			if v := normalizeSize(m[1]); ValidSize(v) {
				return v, true
			}
		}
	}
	return "", false
}

func looseSize(text string) (string, bool) {
	for _, m := range looseSizePattern.FindAllStringSubmatch(text, -1) {
		if v := normalizeSize(m[1]); ValidSize(v) {
			return v, true
		}
	}
	return "", false
}

func nameSize(rawName string) (string, bool) {
	if rawName == "" {
		return "", false
	}
	for _, re := range nameSizePatterns {
		if m := re.FindStringSubmatch(rawName); m != nil {
			if v := normalizeSize(m[1]); ValidSize(v) {
				return v, true
			}
		}
	}
	return "", false
}

func normalizeSize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, " .,;)")
	return strings.Join(strings.Fields(s), " ")
}

// ValidSize rejects candidates that look like style code or placeholders.
func ValidSize(s string) bool {
	if s == "" || len(s) > maxSizeLen {
		return false
	}
	if strings.Contains(s, "!important") || strings.ContainsAny(s, "{};%:") {
		return false
	}
	return !sizePlaceholders[strings.ToLower(s)]
}
