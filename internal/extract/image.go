package extract

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/daviddao/mailorders/internal/merchant"
)

// productKeywords mark an img alt as describing a product when the product
// name itself is unknown or abbreviated in the alt text.
var productKeywords = []string{
	"jordan", "nike", "yeezy", "dunk", "adidas", "new balance", "air force",
	"air max", "sneaker", "asics", "converse", "vans", "supreme", "travis scott",
}

var productImageClasses = []string{"product-image", "item-image", "productimage", "product_image"}

var (
	imgSrcAlt  = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["'][^>]*alt=["']([^"']+)["']`)
	imgAltSrc  = regexp.MustCompile(`(?i)<img[^>]+alt=["']([^"']+)["'][^>]*src=["']([^"']+)["']`)
	nonProduct = regexp.MustCompile(`(?i)\b(logo|icon|facebook|twitter|instagram|tiktok|youtube|pinterest|social|badge|app store|google play|spacer|pixel|banner)\b`)
)

// img is one parsed image tag.
type img struct {
	src   string
	alt   string
	class string
}

// productImage finds the product photo in an HTML body. A structured pass
// over parsed img tags runs first; a regex pass over raw markup is the
// fallback for bodies the parser reads differently.
func productImage(body, productName string, m merchant.Merchant) string {
	src, ok := firstOf(&document{html: body},
		func(d *document) (string, bool) { return structuredImage(d.html, productName) },
		func(d *document) (string, bool) { return scannedImage(d.html) },
	)
	if !ok {
		return ""
	}
	return canonicalImageURL(src, m)
}

func structuredImage(body, productName string) (string, bool) {
	imgs := parseImages(body)
	if len(imgs) == 0 {
		return "", false
	}

	key := strings.ToLower(productName)
	if len(key) > 20 {
		key = key[:20]
	}
	for _, im := range imgs {
		alt := strings.ToLower(im.alt)
		if alt == "" || im.src == "" || nonProduct.MatchString(alt) {
			continue
		}
		if key != "" && strings.Contains(alt, key) {
			return im.src, true
		}
		for _, kw := range productKeywords {
			if strings.Contains(alt, kw) {
				return im.src, true
			}
		}
	}

	for _, im := range imgs {
		class := strings.ToLower(im.class)
		for _, c := range productImageClasses {
			if im.src != "" && strings.Contains(class, c) {
				return im.src, true
			}
		}
	}
	return "", false
}

func parseImages(body string) []img {
	var out []img
	z := xhtml.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			return out
		}
		if tt != xhtml.StartTagToken && tt != xhtml.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "img" || !hasAttr {
			continue
		}
		var im img
		for {
			key, val, more := z.TagAttr()
			switch string(key) {
			case "src":
				im.src = strings.TrimSpace(string(val))
			case "alt":
				im.alt = strings.TrimSpace(string(val))
			case "class":
				im.class = string(val)
			}
			if !more {
				break
			}
		}
		out = append(out, im)
	}
}

func scannedImage(body string) (string, bool) {
	for _, m := range imgSrcAlt.FindAllStringSubmatch(body, -1) {
		if productAlt(m[2]) {
			return html.UnescapeString(m[1]), true
		}
	}
	for _, m := range imgAltSrc.FindAllStringSubmatch(body, -1) {
		if productAlt(m[1]) {
			return html.UnescapeString(m[2]), true
		}
	}
	return "", false
}

// productAlt accepts alt text of two or more words that is not site chrome.
func productAlt(alt string) bool {
	alt = strings.TrimSpace(alt)
	return len(strings.Fields(alt)) >= 2 && !nonProduct.MatchString(alt)
}

// canonicalImageURL drops query and fragment from merchant CDN URLs.
func canonicalImageURL(src string, m merchant.Merchant) string {
	u, err := url.Parse(src)
	if err != nil || !m.IsCDN(u.Hostname()) {
		return src
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
