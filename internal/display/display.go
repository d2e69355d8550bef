// Package display provides terminal formatting for mailorders output.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/mailorders/internal/types"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	OrderedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	ShippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb"))
	DelayedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	DeliveredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	CanceledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

func statusStyle(s types.Status) (lipgloss.Style, bool) {
	switch s {
	case types.StatusOrdered:
		return OrderedStyle, true
	case types.StatusShipped:
		return ShippedStyle, true
	case types.StatusDelayed:
		return DelayedStyle, true
	case types.StatusDelivered:
		return DeliveredStyle, true
	case types.StatusCanceled:
		return CanceledStyle, true
	default:
		return lipgloss.Style{}, false
	}
}

// StatusDot returns a colored dot for a lifecycle status.
func StatusDot(s types.Status) string {
	style, ok := statusStyle(s)
	if !ok {
		return Dim.Render("·")
	}
	switch s {
	case types.StatusDelivered:
		return style.Render("●")
	case types.StatusCanceled:
		return style.Render("✗")
	default:
		return style.Render("○")
	}
}

// StatusLabel returns a fixed-width styled status label.
func StatusLabel(s types.Status) string {
	label := fmt.Sprintf("%-9s", strings.ToUpper(string(s)))
	if style, ok := statusStyle(s); ok {
		return style.Render(label)
	}
	return label
}

// AccountLabel returns a short label for an account.
// Derives the label from the domain (e.g., "user@example.com" -> "example").
func AccountLabel(account string) string {
	if idx := strings.Index(account, "@"); idx > 0 {
		domain := account[idx+1:]
		if dotIdx := strings.Index(domain, "."); dotIdx > 0 {
			return domain[:dotIdx]
		}
		return domain
	}
	return account
}

// TimeAgo formats an ISO date string as a relative time.
func TimeAgo(isoDate string) string {
	return timeAgo(isoDate, time.Now())
}

func timeAgo(isoDate string, now time.Time) string {
	if isoDate == "" {
		return ""
	}

	var t time.Time
	var err error
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02"} {
		t, err = time.Parse(layout, isoDate)
		if err == nil {
			break
		}
	}
	if err != nil {
		return isoDate[:min(10, len(isoDate))]
	}

	d := now.Sub(t)
	switch {
	case d < 0:
		return t.Format("Jan 2")
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens a string to maxLen runes, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Money formats an amount with its currency code. Zero amounts render empty.
func Money(amount float64, currency string) string {
	if amount == 0 {
		return ""
	}
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

// OrderLine renders one order as a single list row.
func OrderLine(o *types.StoredOrder) string {
	c := o.Canonical
	name := c.ProductName
	if name == "" {
		name = c.Subject
	}
	parts := []string{
		StatusDot(c.Status),
		StatusLabel(c.Status),
		Bold.Render(fmt.Sprintf("%-14s", o.OrderNumber)),
		Truncate(name, 40),
	}
	if c.Size != "" {
		parts = append(parts, Dim.Render("sz "+c.Size))
	}
	if m := Money(c.TotalAmount, c.Currency); m != "" {
		parts = append(parts, m)
	}
	if c.EmailDate != "" {
		parts = append(parts, Dim.Render(TimeAgo(c.EmailDate)))
	}
	return strings.Join(parts, "  ")
}

// OrderDetail writes the full view of one order and its history.
func OrderDetail(w io.Writer, o *types.StoredOrder, history []types.HistoryEntry) {
	c := o.Canonical
	fmt.Fprintf(w, "Order: %s  %s\n", Bold.Render(o.OrderNumber), StatusLabel(c.Status))
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %-10s %s\n", Muted.Render(label+":"), value)
		}
	}
	field("Merchant", c.Merchant)
	field("Type", string(c.OrderType))
	field("Product", c.ProductName)
	field("Size", c.Size)
	field("Variant", c.ProductVariant)
	field("Style", c.StyleID)
	field("Condition", c.Condition)
	field("Price", Money(c.PurchasePrice, c.Currency))
	field("Fee", Money(c.ProcessingFee, c.Currency))
	field("Shipping", strings.TrimSpace(Money(c.ShippingFee, c.Currency)+" "+c.ShippingType))
	field("Total", Money(c.TotalAmount, c.Currency))
	field("Ordered", c.PurchaseDate)
	if c.EstimatedDeliveryStart != "" || c.EstimatedDeliveryEnd != "" {
		field("Arrives", strings.Trim(c.EstimatedDeliveryStart+" - "+c.EstimatedDeliveryEnd, " -"))
	}
	if c.TrackingNumber != "" {
		field("Tracking", strings.TrimSpace(c.TrackingNumber+" "+Dim.Render(c.Carrier)))
	}
	field("Image", c.ProductImageURL)
	field("Reconciled", o.ReconciledBy)

	seen := make([]string, len(o.StatusesSeen))
	for i, s := range o.StatusesSeen {
		seen[i] = string(s)
	}
	field("Seen", strings.Join(seen, ", "))
	fmt.Fprintf(w, "  %-10s %d\n", Muted.Render("Messages:"), o.MessageCount)

	if len(history) == 0 {
		return
	}
	fmt.Fprintln(w)
	for i, h := range history {
		connector := "├─"
		switch {
		case len(history) == 1:
			connector = "──"
		case i == 0:
			connector = "┌─"
		case i == len(history)-1:
			connector = "└─"
		}
		HistoryTree(w, connector, h)
	}
}

// HistoryTree prints one status observation in a tree-style format.
// connector is one of "┌─", "├─", "└─".
func HistoryTree(w io.Writer, connector string, h types.HistoryEntry) {
	fmt.Fprintf(w, "  %s %s %s  ·  %s\n",
		Muted.Render(connector),
		StatusDot(h.Status),
		Bold.Render(string(h.Status)),
		Dim.Render(TimeAgo(h.EmailDate)),
	)
	prefix := "  │  "
	if connector == "└─" || connector == "──" {
		prefix = "     "
	}
	if h.Subject != "" {
		fmt.Fprintf(w, "%s%s\n", Muted.Render(prefix), Truncate(strings.TrimSpace(h.Subject), 80))
	}
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(Success.Render("✓") + " " + msg)
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+msg)
}

// Header prints a section header.
func Header(title string) {
	fmt.Println(Bold.Render(title))
}
