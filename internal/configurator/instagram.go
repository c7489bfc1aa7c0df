package configurator

import (
	"fmt"

	"github.com/mazira-designs/api/internal/catalog"
	domain "github.com/mazira-designs/api/internal/domain"
)

// InstagramAddOns groups the stories and carousel packs. Choosing the tier that is already
// selected deselects it.
type InstagramAddOns struct {
	Stories   *Selector
	Carousels *Selector
}

// NewInstagramAddOns builds both add-on selectors sharing the listener options.
func NewInstagramAddOns(c *catalog.Catalog, opts ...SelectorOption) (*InstagramAddOns, error) {
	stories, err := NewSelector(c, domain.CategoryInstagramStories, opts...)
	if err != nil {
		return nil, fmt.Errorf("instagram stories: %w", err)
	}
	carousels, err := NewSelector(c, domain.CategoryInstagramCarousels, opts...)
	if err != nil {
		return nil, fmt.Errorf("instagram carousels: %w", err)
	}
	return &InstagramAddOns{Stories: stories, Carousels: carousels}, nil
}

// ToggleStories selects or deselects a stories pack.
func (a *InstagramAddOns) ToggleStories(tierID string) bool {
	return toggleTier(a.Stories, tierID)
}

// ToggleCarousels selects or deselects a carousel series.
func (a *InstagramAddOns) ToggleCarousels(tierID string) bool {
	return toggleTier(a.Carousels, tierID)
}

// Subtotal is the combined price of both packs.
func (a *InstagramAddOns) Subtotal() int64 {
	return a.Stories.Subtotal() + a.Carousels.Subtotal()
}

func toggleTier(s *Selector, tierID string) bool {
	if s.tier != nil && (s.tier.PriceID == tierID || s.tier.Key == tierID) {
		s.ClearTier()
		return true
	}
	return s.SelectTier(tierID)
}
