package configurator

import domain "github.com/mazira-designs/api/internal/domain"

// Aggregator keeps one line item per active category in first-selection order.
type Aggregator struct {
	items []domain.PlanLineItem
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Apply replaces the category's line item in place, appends it when new, or removes it when the
// selection is nil.
func (a *Aggregator) Apply(category domain.Category, selection domain.Selection) {
	idx := a.index(category)
	if selection == nil {
		if idx >= 0 {
			a.items = append(a.items[:idx], a.items[idx+1:]...)
		}
		return
	}
	item := selection.LineItem()
	item.Category = category
	if idx >= 0 {
		a.items[idx] = item
		return
	}
	a.items = append(a.items, item)
}

// Listener adapts the aggregator for selector notifications.
func (a *Aggregator) Listener() Listener {
	return a.Apply
}

// Total sums every line item price.
func (a *Aggregator) Total() int64 {
	return Total(a.items)
}

// Clear drops every line item.
func (a *Aggregator) Clear() {
	a.items = nil
}

// LineItems returns a copy of the current line items.
func (a *Aggregator) LineItems() []domain.PlanLineItem {
	out := make([]domain.PlanLineItem, len(a.items))
	for i, item := range a.items {
		out[i] = item.Clone()
	}
	return out
}

func (a *Aggregator) index(category domain.Category) int {
	for i, item := range a.items {
		if item.Category == category {
			return i
		}
	}
	return -1
}

// Total sums the prices of items.
func Total(items []domain.PlanLineItem) int64 {
	var sum int64
	for _, item := range items {
		sum += item.Price
	}
	return sum
}
