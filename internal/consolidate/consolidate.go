// Package consolidate folds classified events into one canonical view per order.
package consolidate

import (
	"slices"

	"github.com/daviddao/mailorders/internal/types"
)

// Consolidate groups events by order number. Events without an order number
// are ignored. The canonical event of each group is the first one carrying
// the group's highest priority.
func Consolidate(events []types.ClassifiedEvent) map[string]*types.ConsolidatedOrder {
	orders := make(map[string]*types.ConsolidatedOrder)
	for _, ev := range events {
		if ev.OrderNumber == "" {
			continue
		}
		orders[ev.OrderNumber] = Merge(orders[ev.OrderNumber], ev)
	}
	return orders
}

// Merge adds ev to existing and returns the result. A nil existing starts a
// new order. Merge never lowers the canonical priority, and an event whose
// message ID was already merged changes nothing, so replaying a superset of
// events yields the same order.
func Merge(existing *types.ConsolidatedOrder, ev types.ClassifiedEvent) *types.ConsolidatedOrder {
	if existing == nil {
		return &types.ConsolidatedOrder{
			OrderNumber:  ev.OrderNumber,
			Canonical:    ev,
			StatusesSeen: []types.Status{ev.Status},
			MessageCount: 1,
			MessageIDs:   messageIDs(nil, ev.MessageID),
		}
	}

	if ev.MessageID != "" && slices.Contains(existing.MessageIDs, ev.MessageID) {
		return existing
	}

	existing.MessageCount++
	existing.MessageIDs = messageIDs(existing.MessageIDs, ev.MessageID)
	if !slices.Contains(existing.StatusesSeen, ev.Status) {
		existing.StatusesSeen = append(existing.StatusesSeen, ev.Status)
	}
	if ev.Priority > existing.Canonical.Priority {
		existing.Canonical = ev
	}
	return existing
}

func messageIDs(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	return append(ids, id)
}

// Combine folds incoming into existing, both describing the same order. It
// follows Merge: statuses and message IDs are unioned and the canonical
// event changes only for a strictly higher priority.
func Combine(existing, incoming *types.ConsolidatedOrder) *types.ConsolidatedOrder {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}

	for _, s := range incoming.StatusesSeen {
		if !slices.Contains(existing.StatusesSeen, s) {
			existing.StatusesSeen = append(existing.StatusesSeen, s)
		}
	}
	added := incoming.MessageCount - len(incoming.MessageIDs)
	for _, id := range incoming.MessageIDs {
		if !slices.Contains(existing.MessageIDs, id) {
			existing.MessageIDs = append(existing.MessageIDs, id)
			added++
		}
	}
	existing.MessageCount += max(added, 0)
	if incoming.Canonical.Priority > existing.Canonical.Priority {
		existing.Canonical = incoming.Canonical
	}
	return existing
}
