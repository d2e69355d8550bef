// Package merchant recognizes marketplace senders.
package merchant

import (
	"net/mail"
	"strings"
)

// Merchant describes one marketplace whose notification emails are parsed.
type Merchant struct {
	Name          string   `mapstructure:"name" yaml:"name"`
	SenderDomains []string `mapstructure:"sender_domains" yaml:"sender_domains"`
	SubjectTokens []string `mapstructure:"subject_tokens" yaml:"subject_tokens"`
	CDNHosts      []string `mapstructure:"cdn_hosts" yaml:"cdn_hosts"`
}

// StockX is the built-in merchant used when none are configured.
var StockX = Merchant{
	Name:          "StockX",
	SenderDomains: []string{"stockx.com"},
	SubjectTokens: []string{"stockx"},
	CDNHosts:      []string{"images.stockx.com", "image.stockx.com"},
}

// Registry is an ordered set of merchants. The first match wins.
type Registry []Merchant

// DefaultRegistry returns a registry holding only the built-in merchant.
func DefaultRegistry() Registry {
	return Registry{StockX}
}

// Detect returns the merchant whose sender domain appears in sender or whose
// subject token appears in subject.
func (r Registry) Detect(sender, subject string) (Merchant, bool) {
	if m, ok := r.BySender(sender); ok {
		return m, true
	}
	lower := strings.ToLower(subject)
	for _, m := range r {
		for _, tok := range m.SubjectTokens {
			if tok != "" && strings.Contains(lower, strings.ToLower(tok)) {
				return m, true
			}
		}
	}
	return Merchant{}, false
}

// ByName returns the merchant with the given name, ignoring case.
func (r Registry) ByName(name string) (Merchant, bool) {
	for _, m := range r {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Merchant{}, false
}

// BySender returns the merchant owning the sender address.
func (r Registry) BySender(sender string) (Merchant, bool) {
	addr := senderDomain(sender)
	if addr == "" {
		return Merchant{}, false
	}
	for _, m := range r {
		for _, d := range m.SenderDomains {
			d = strings.ToLower(d)
			if d != "" && (addr == d || strings.HasSuffix(addr, "."+d)) {
				return m, true
			}
		}
	}
	return Merchant{}, false
}

// IsCDN reports whether host belongs to the merchant's image CDN.
func (m Merchant) IsCDN(host string) bool {
	host = strings.ToLower(host)
	for _, h := range m.CDNHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

// FromQuery returns a Gmail from: predicate covering every sender domain.
func (m Merchant) FromQuery() string {
	switch len(m.SenderDomains) {
	case 0:
		return ""
	case 1:
		return "from:" + m.SenderDomains[0]
	}
	parts := make([]string, len(m.SenderDomains))
	for i, d := range m.SenderDomains {
		parts[i] = "from:" + d
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// senderDomain extracts the lowercased domain of a From header value.
func senderDomain(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return ""
	}
	addr := sender
	if parsed, err := mail.ParseAddress(sender); err == nil {
		addr = parsed.Address
	} else if i, j := strings.LastIndex(sender, "<"), strings.LastIndex(sender, ">"); i >= 0 && j > i {
		addr = sender[i+1 : j]
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[at+1:]))
}
