package configurator

import (
	"errors"
	"fmt"

	"github.com/mazira-designs/api/internal/catalog"
	domain "github.com/mazira-designs/api/internal/domain"
)

// Listener receives the full selection after every state change. A nil selection means the
// category has no tier chosen.
type Listener func(category domain.Category, selection domain.Selection)

// Selector holds one category's tier and platform choices. Invalid input is ignored and leaves
// the prior state intact.
type Selector struct {
	catalog  *catalog.Catalog
	spec     catalog.CategorySpec
	tier     *catalog.Entry
	free     domain.Platform
	extra    []domain.Platform
	listener Listener
}

// SelectorOption customises a selector.
type SelectorOption func(*Selector)

// WithListener registers the function notified on every change.
func WithListener(fn Listener) SelectorOption {
	return func(s *Selector) {
		s.listener = fn
	}
}

// NewSelector builds the selector for category. Platform categories start with the catalog's
// default free platform and no tier.
func NewSelector(c *catalog.Catalog, category domain.Category, opts ...SelectorOption) (*Selector, error) {
	if c == nil {
		return nil, errors.New("configurator: catalog is required")
	}
	spec, err := c.Category(category)
	if err != nil {
		return nil, fmt.Errorf("configurator: %w", err)
	}
	s := &Selector{
		catalog: c,
		spec:    spec,
		free:    spec.DefaultFreePlatform,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Category returns the category this selector prices.
func (s *Selector) Category() domain.Category { return s.spec.Category }

// Spec returns the catalog options backing the selector.
func (s *Selector) Spec() catalog.CategorySpec { return s.spec }

// SelectTier chooses a tier by price id or key. The empty value, the "select" placeholder and
// ids from other categories are ignored without emitting. It reports whether state changed.
func (s *Selector) SelectTier(tierID string) bool {
	entry, err := s.catalog.TierByPriceID(s.spec.Category, tierID)
	if err != nil {
		return false
	}
	s.tier = &entry
	s.emit()
	return true
}

// SelectDefaultTier chooses the first tier of the category.
func (s *Selector) SelectDefaultTier() bool {
	return s.SelectTier(s.spec.DefaultTier().Key)
}

func (s *Selector) reset() {
	s.tier = nil
	s.free = s.spec.DefaultFreePlatform
	s.extra = nil
}

// ClearTier deselects the tier; the listener receives a nil selection.
func (s *Selector) ClearTier() {
	if s.tier == nil {
		return
	}
	s.tier = nil
	s.emit()
}

// SelectFreePlatform sets the platform included at no charge. A platform previously billed as
// additional is evicted so it is never charged twice.
func (s *Selector) SelectFreePlatform(p domain.Platform) bool {
	if !s.offers(p) {
		return false
	}
	s.free = p
	s.extra = without(s.extra, p)
	s.emit()
	return true
}

// ToggleAdditionalPlatform adds or removes a paid platform. Adding the current free platform is
// a no-op.
func (s *Selector) ToggleAdditionalPlatform(p domain.Platform, checked bool) bool {
	if !s.offers(p) {
		return false
	}
	switch {
	case checked && p == s.free:
		return false
	case checked:
		if contains(s.extra, p) {
			return false
		}
		s.extra = append(s.extra, p)
	default:
		if !contains(s.extra, p) {
			return false
		}
		s.extra = without(s.extra, p)
	}
	s.emit()
	return true
}

// Selection returns the current selection, or nil when no tier is chosen.
func (s *Selector) Selection() domain.Selection {
	if s.tier == nil {
		return nil
	}
	choice := domain.TierChoice{
		Key:       s.tier.Key,
		PriceID:   s.tier.PriceID,
		Label:     s.tier.Label,
		Quantity:  s.tier.Quantity,
		UnitPrice: s.tier.UnitAmount,
	}
	if s.spec.Category.Kind() != domain.KindPlatform {
		return domain.TierSelection{Cat: s.spec.Category, Choice: choice}
	}
	sel := domain.PlatformSelection{
		Cat:       s.spec.Category,
		Choice:    choice,
		Surcharge: s.spec.Surcharge,
	}
	if entry, err := s.catalog.PlatformEntry(s.spec.Category, s.free, true); err == nil {
		sel.Free = domain.PlatformChoice{Platform: s.free, Key: entry.Key, PriceID: entry.PriceID}
	}
	for _, p := range s.extra {
		entry, err := s.catalog.PlatformEntry(s.spec.Category, p, false)
		if err != nil {
			continue
		}
		sel.Additional = append(sel.Additional, domain.PlatformChoice{Platform: p, Key: entry.Key, PriceID: entry.PriceID})
	}
	return sel
}

// Subtotal is the price of the current selection, zero without a tier.
func (s *Selector) Subtotal() int64 {
	sel := s.Selection()
	if sel == nil {
		return 0
	}
	return sel.Total()
}

// FreePlatform returns the platform currently included at no charge.
func (s *Selector) FreePlatform() domain.Platform { return s.free }

// AdditionalPlatforms returns the paid platforms in the order they were added.
func (s *Selector) AdditionalPlatforms() []domain.Platform {
	return append([]domain.Platform(nil), s.extra...)
}

// TierKey returns the key of the chosen tier, empty when none.
func (s *Selector) TierKey() string {
	if s.tier == nil {
		return ""
	}
	return s.tier.Key
}

func (s *Selector) offers(p domain.Platform) bool {
	return s.spec.Category.Kind() == domain.KindPlatform && s.spec.OffersPlatform(p)
}

func (s *Selector) emit() {
	if s.listener != nil {
		s.listener(s.spec.Category, s.Selection())
	}
}

func contains(list []domain.Platform, p domain.Platform) bool {
	for _, candidate := range list {
		if candidate == p {
			return true
		}
	}
	return false
}

func without(list []domain.Platform, p domain.Platform) []domain.Platform {
	out := list[:0:0]
	for _, candidate := range list {
		if candidate != p {
			out = append(out, candidate)
		}
	}
	return out
}
