package classify

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/types"
)

// saleSubjects mark notifications about items the user sold. These messages
// are discarded before classification.
var saleSubjects = []string{
	"you sold your item",
	"your item sold",
	"sold your item",
	"ship your sale",
	"your payout",
	"payout sent",
	"your ask",
	"ask has expired",
}

// deliverySubjects force a Delivered status on merchant mail.
var deliverySubjects = []string{
	"order delivered",
	"has been delivered",
	"was delivered",
	"delivered:",
	"package delivered",
}

// deliveryEmoji appear in delivery subjects that omit the wording.
var deliveryEmoji = []string{"📬", "✅ delivered"}

// Classifier assigns a status and priority to extracted records.
type Classifier struct {
	table      *Table
	priorities Priorities
	merchants  merchant.Registry
}

// New creates a Classifier. A nil table selects DefaultTable and nil
// priorities select PurchasesPriorities.
func New(table *Table, priorities Priorities, merchants merchant.Registry) *Classifier {
	if table == nil {
		table = DefaultTable()
	}
	if len(priorities) == 0 {
		priorities = PurchasesPriorities()
	}
	return &Classifier{table: table, priorities: priorities, merchants: merchants}
}

// Priorities returns the ranking in use.
func (c *Classifier) Priorities() Priorities {
	return c.priorities
}

// Classify maps rec to a ClassifiedEvent. It returns false when the subject
// is a sale notification.
func (c *Classifier) Classify(rec *types.OrderRecord) (types.ClassifiedEvent, bool) {
	if rec == nil || IsSaleNotification(rec.Subject) {
		return types.ClassifiedEvent{}, false
	}

	ev := types.ClassifiedEvent{
		OrderRecord: *rec,
		Status:      types.StatusOrdered,
		Priority:    c.priorities.Lowest(),
		Category:    "default",
	}

	subject := fold(rec.Subject)
	if cat, ok := c.match(subject); ok {
		ev.Status = cat.Status
		ev.Priority = c.priorities.Of(cat.Status)
		ev.Category = cat.Name
		ev.Color = cat.Color
	}

	if c.isMerchantMail(rec) && IsDeliverySubject(rec.Subject) && ev.Status != types.StatusDelivered {
		zap.L().Debug("classify: delivery override",
			zap.String("message_id", rec.MessageID),
			zap.String("matched", string(ev.Status)),
		)
		ev.Status = types.StatusDelivered
		ev.Priority = c.priorities.Of(types.StatusDelivered)
		ev.Category = "delivered"
		ev.Color = "green"
	}

	return ev, true
}

func (c *Classifier) match(subject string) (Category, bool) {
	for _, cat := range c.table.categories {
		for _, p := range cat.Patterns {
			if strings.Contains(subject, fold(p)) {
				return cat, true
			}
		}
	}
	return Category{}, false
}

// isMerchantMail requires a merchant sender address. A merchant name in the
// subject alone, as in forwarded mail, does not count.
func (c *Classifier) isMerchantMail(rec *types.OrderRecord) bool {
	_, ok := c.merchants.BySender(rec.Sender)
	return ok
}

// IsSaleNotification reports whether subject announces a sale by the user.
func IsSaleNotification(subject string) bool {
	return containsAny(fold(subject), saleSubjects)
}

// IsDeliverySubject reports whether subject carries delivery wording or a
// delivery emoji.
func IsDeliverySubject(subject string) bool {
	s := fold(subject)
	return containsAny(s, deliverySubjects) || containsAny(s, deliveryEmoji)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, fold(n)) {
			return true
		}
	}
	return false
}

// fold returns the case-folded form of s. A Caser is not safe for
// concurrent use, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
