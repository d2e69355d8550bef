// Package classify maps notification subjects to order lifecycle stages.
package classify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/daviddao/mailorders/internal/types"
)

// Category is one row of the subject pattern table.
type Category struct {
	Name     string       `yaml:"name"`
	Status   types.Status `yaml:"status"`
	Color    string       `yaml:"color"`
	Patterns []string     `yaml:"patterns"`
}

// Table is an immutable, ordered list of categories. Iteration order is
// match order.
type Table struct {
	categories []Category
}

// NewTable copies categories into a Table, validating statuses.
func NewTable(categories []Category) (*Table, error) {
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		if !types.IsValidStatus(string(c.Status)) {
			return nil, eris.Errorf("classify: category %q has invalid status %q", c.Name, c.Status)
		}
		if len(c.Patterns) == 0 {
			return nil, eris.Errorf("classify: category %q has no patterns", c.Name)
		}
		c.Patterns = append([]string(nil), c.Patterns...)
		out = append(out, c)
	}
	return &Table{categories: out}, nil
}

// Categories returns a copy of the table rows in match order.
func (t *Table) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		c.Patterns = append([]string(nil), c.Patterns...)
		out[i] = c
	}
	return out
}

type tableFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadTable reads a YAML category table from path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read table %s", path)
	}
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "classify: parse table %s", path)
	}
	if len(f.Categories) == 0 {
		return nil, eris.Errorf("classify: table %s has no categories", path)
	}
	return NewTable(f.Categories)
}

// DefaultTable is the built-in subject table. Shipped precedes Delivered, so
// "Xpress Ship Order Delivered" subjects rely on the delivery override.
func DefaultTable() *Table {
	t, _ := NewTable([]Category{
		{
			Name:   "canceled",
			Status: types.StatusCanceled,
			Color:  "red",
			Patterns: []string{
				"order canceled", "order cancelled", "has been canceled",
				"has been cancelled", "cancellation", "refund issued",
			},
		},
		{
			Name:   "delayed",
			Status: types.StatusDelayed,
			Color:  "orange",
			Patterns: []string{
				"order delayed", "delayed:", "delivery delay", "running late",
				"update on your order",
			},
		},
		{
			Name:   "shipped",
			Status: types.StatusShipped,
			Color:  "blue",
			Patterns: []string{
				"order shipped", "shipped:", "has shipped", "is on its way",
				"on the way", "xpress ship", "out for delivery",
			},
		},
		{
			Name:   "delivered",
			Status: types.StatusDelivered,
			Color:  "green",
			Patterns: []string{
				"order delivered", "delivered:", "has been delivered", "was delivered",
			},
		},
		{
			Name:   "ordered",
			Status: types.StatusOrdered,
			Color:  "gray",
			Patterns: []string{
				"order confirmed", "order placed", "purchase confirmed",
				"you bought", "order received", "thanks for your order",
			},
		},
	})
	return t
}

// Priorities ranks statuses for tie-breaking. Higher wins.
type Priorities map[types.Status]int

// Priority profiles. The purchases view ranks Canceled highest; the sync
// view ranks Delivered highest.
const (
	ProfilePurchases = "purchases"
	ProfileSync      = "sync"
)

// PurchasesPriorities is the ranking used by the purchases view.
func PurchasesPriorities() Priorities {
	return Priorities{
		types.StatusOrdered:   1,
		types.StatusDelayed:   2,
		types.StatusShipped:   3,
		types.StatusDelivered: 4,
		types.StatusCanceled:  5,
	}
}

// SyncPriorities is the ranking used by live sync.
func SyncPriorities() Priorities {
	return Priorities{
		types.StatusOrdered:   1,
		types.StatusDelayed:   2,
		types.StatusShipped:   3,
		types.StatusCanceled:  4,
		types.StatusDelivered: 5,
	}
}

// PrioritiesFor returns the named ranking profile.
func PrioritiesFor(profile string) (Priorities, error) {
	switch profile {
	case "", ProfilePurchases:
		return PurchasesPriorities(), nil
	case ProfileSync:
		return SyncPriorities(), nil
	default:
		return nil, eris.Errorf("classify: unknown priority profile %q", profile)
	}
}

// Of returns the rank of s, or the lowest rank when s is not ranked.
func (p Priorities) Of(s types.Status) int {
	if v, ok := p[s]; ok {
		return v
	}
	return p.Lowest()
}

// Lowest returns the smallest configured rank.
func (p Priorities) Lowest() int {
	lowest := 0
	first := true
	for _, v := range p {
		if first || v < lowest {
			lowest = v
			first = false
		}
	}
	return lowest
}
