package configurator

import (
	"fmt"

	"github.com/mazira-designs/api/internal/catalog"
	domain "github.com/mazira-designs/api/internal/domain"
)

// CategoryState is the persisted form of one selector.
type CategoryState struct {
	Category     domain.Category   `json:"category"`
	Tier         string            `json:"tier,omitempty"`
	FreePlatform domain.Platform   `json:"freePlatform,omitempty"`
	Additional   []domain.Platform `json:"additional,omitempty"`
}

// State is a serialisable plan. Selections are stored in line-item order.
type State struct {
	Selections []CategoryState `json:"selections"`
}

// Plan wires a selector for every category to one aggregator.
type Plan struct {
	catalog    *catalog.Catalog
	aggregator *Aggregator
	selectors  map[domain.Category]*Selector
	instagram  *InstagramAddOns
}

// NewPlan builds an empty plan against c.
func NewPlan(c *catalog.Catalog) (*Plan, error) {
	agg := NewAggregator()
	p := &Plan{
		catalog:    c,
		aggregator: agg,
		selectors:  make(map[domain.Category]*Selector),
	}
	listener := WithListener(agg.Listener())
	for _, category := range domain.Categories() {
		if category == domain.CategoryInstagramStories || category == domain.CategoryInstagramCarousels {
			continue
		}
		sel, err := NewSelector(c, category, listener)
		if err != nil {
			return nil, err
		}
		p.selectors[category] = sel
	}
	ig, err := NewInstagramAddOns(c, listener)
	if err != nil {
		return nil, err
	}
	p.instagram = ig
	p.selectors[domain.CategoryInstagramStories] = ig.Stories
	p.selectors[domain.CategoryInstagramCarousels] = ig.Carousels
	return p, nil
}

// Selector returns the selector for category.
func (p *Plan) Selector(category domain.Category) (*Selector, bool) {
	sel, ok := p.selectors[category]
	return sel, ok
}

// Instagram returns the add-on group.
func (p *Plan) Instagram() *InstagramAddOns { return p.instagram }

// LineItems returns the current summary.
func (p *Plan) LineItems() []domain.PlanLineItem { return p.aggregator.LineItems() }

// Total returns the grand total in cents.
func (p *Plan) Total() int64 { return p.aggregator.Total() }

// Clear resets every selector to its defaults and empties the summary. No listener fires.
func (p *Plan) Clear() {
	for _, sel := range p.selectors {
		sel.reset()
	}
	p.aggregator.Clear()
}

// Snapshot captures the plan. Selectors without a tier are kept when their platforms differ from
// the defaults so platform choices survive a reload.
func (p *Plan) Snapshot() State {
	var state State
	seen := make(map[domain.Category]bool)
	for _, item := range p.aggregator.LineItems() {
		if sel, ok := p.selectors[item.Category]; ok {
			state.Selections = append(state.Selections, stateOf(sel))
			seen[item.Category] = true
		}
	}
	for _, category := range domain.Categories() {
		sel, ok := p.selectors[category]
		if !ok || seen[category] {
			continue
		}
		if sel.FreePlatform() != sel.spec.DefaultFreePlatform || len(sel.extra) > 0 {
			state.Selections = append(state.Selections, stateOf(sel))
		}
	}
	return state
}

// Restore replays state onto an empty plan. Entries that no longer match the catalog are skipped
// and reported in the returned list.
func (p *Plan) Restore(state State) []string {
	var skipped []string
	for _, cs := range state.Selections {
		sel, ok := p.selectors[cs.Category]
		if !ok {
			skipped = append(skipped, fmt.Sprintf("unknown category %q", cs.Category))
			continue
		}
		if cs.FreePlatform != "" && !sel.SelectFreePlatform(cs.FreePlatform) {
			skipped = append(skipped, fmt.Sprintf("%s: free platform %q", cs.Category, cs.FreePlatform))
		}
		for _, extra := range cs.Additional {
			if !sel.ToggleAdditionalPlatform(extra, true) {
				skipped = append(skipped, fmt.Sprintf("%s: additional platform %q", cs.Category, extra))
			}
		}
		if cs.Tier != "" && !sel.SelectTier(cs.Tier) {
			skipped = append(skipped, fmt.Sprintf("%s: tier %q", cs.Category, cs.Tier))
		}
	}
	return skipped
}

func stateOf(sel *Selector) CategoryState {
	return CategoryState{
		Category:     sel.Category(),
		Tier:         sel.TierKey(),
		FreePlatform: sel.FreePlatform(),
		Additional:   sel.AdditionalPlatforms(),
	}
}

// Quote prices selections on a throwaway plan.
func Quote(c *catalog.Catalog, selections []CategoryState) ([]domain.PlanLineItem, int64, []string, error) {
	plan, err := NewPlan(c)
	if err != nil {
		return nil, 0, nil, err
	}
	skipped := plan.Restore(State{Selections: selections})
	return plan.LineItems(), plan.Total(), skipped, nil
}
