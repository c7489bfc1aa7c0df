package domain

import (
	"fmt"
	"strings"
)

// TierChoice is the catalog tier a selection is priced from.
type TierChoice struct {
	Key       string `json:"key"`
	PriceID   string `json:"priceId"`
	Label     string `json:"label"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// PlatformChoice ties a platform to the catalog entry that bills it.
type PlatformChoice struct {
	Platform Platform `json:"platform"`
	Key      string   `json:"key"`
	PriceID  string   `json:"priceId"`
}

// Selection is the normalised record a selector emits. Implementations are TierSelection and
// PlatformSelection.
type Selection interface {
	Category() Category
	Kind() CategoryKind
	Tier() TierChoice
	Total() int64
	LineItem() PlanLineItem
	isSelection()
}

// TierSelection is used by categories without platform options.
type TierSelection struct {
	Cat    Category
	Choice TierChoice
}

func (s TierSelection) Category() Category { return s.Cat }

func (s TierSelection) Kind() CategoryKind { return KindTier }

func (s TierSelection) Tier() TierChoice { return s.Choice }

func (s TierSelection) Total() int64 { return s.Choice.UnitPrice }

func (s TierSelection) LineItem() PlanLineItem {
	return PlanLineItem{
		Category: s.Cat,
		Name:     s.Cat.Name(),
		Tier:     s.Choice.Label,
		Price:    s.Total(),
		PriceKey: s.Choice.Key,
	}
}

func (TierSelection) isSelection() {}

// PlatformSelection is used by categories that bundle one free platform and paid extras.
// Additional never contains Free.
type PlatformSelection struct {
	Cat        Category
	Choice     TierChoice
	Free       PlatformChoice
	Additional []PlatformChoice
	Surcharge  int64
}

func (s PlatformSelection) Category() Category { return s.Cat }

func (s PlatformSelection) Kind() CategoryKind { return KindPlatform }

func (s PlatformSelection) Tier() TierChoice { return s.Choice }

func (s PlatformSelection) Total() int64 {
	return s.Choice.UnitPrice + int64(len(s.Additional))*s.Surcharge
}

// TierLabel renders e.g. "10 Posts per Month (Instagram + 2 more)".
func (s PlatformSelection) TierLabel() string {
	if s.Free.Platform == "" {
		return s.Choice.Label
	}
	suffix := s.Free.Platform.DisplayName()
	if n := len(s.Additional); n > 0 {
		suffix = fmt.Sprintf("%s + %d more", suffix, n)
	}
	return fmt.Sprintf("%s (%s)", s.Choice.Label, suffix)
}

func (s PlatformSelection) LineItem() PlanLineItem {
	item := PlanLineItem{
		Category:        s.Cat,
		Name:            s.Cat.Name(),
		Tier:            s.TierLabel(),
		Price:           s.Total(),
		PriceKey:        s.Choice.Key,
		FreePlatformKey: s.Free.Key,
	}
	if len(s.Additional) > 0 {
		item.AddOnKeys = make([]string, 0, len(s.Additional))
		for _, p := range s.Additional {
			item.AddOnKeys = append(item.AddOnKeys, p.Key)
		}
	}
	return item
}

// HasAdditional reports whether p is billed as an additional platform.
func (s PlatformSelection) HasAdditional(p Platform) bool {
	for _, choice := range s.Additional {
		if choice.Platform == p {
			return true
		}
	}
	return false
}

func (PlatformSelection) isSelection() {}

// PlanLineItem is one category's current selection in the plan summary. Prices are USD cents.
type PlanLineItem struct {
	Category        Category `json:"category"`
	Name            string   `json:"name"`
	Tier            string   `json:"tier"`
	Price           int64    `json:"price"`
	PriceKey        string   `json:"priceKey,omitempty"`
	FreePlatformKey string   `json:"freePlatformKey,omitempty"`
	AddOnKeys       []string `json:"addOnKeys,omitempty"`
}

// Clone returns a deep copy.
func (i PlanLineItem) Clone() PlanLineItem {
	if len(i.AddOnKeys) > 0 {
		keys := make([]string, len(i.AddOnKeys))
		copy(keys, i.AddOnKeys)
		i.AddOnKeys = keys
	}
	return i
}

// CheckoutCartItem is the provider facing representation of a PlanLineItem.
type CheckoutCartItem struct {
	Category      Category `json:"category"`
	PriceID       string   `json:"priceId"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         int64    `json:"price"`
	Quantity      int64    `json:"quantity"`
	FreePlatform  string   `json:"freePlatform,omitempty"`
	AddOnPriceIDs []string `json:"addOnPriceIds,omitempty"`
}

// CustomerData is optional prefill for the hosted checkout page.
type CustomerData struct {
	Email          string `json:"email" validate:"omitempty,email"`
	FirstName      string `json:"firstName" validate:"omitempty,max=80"`
	LastName       string `json:"lastName" validate:"omitempty,max=80"`
	CompanyName    string `json:"companyName,omitempty" validate:"omitempty,max=160"`
	CompanyWebsite string `json:"companyWebsite,omitempty" validate:"omitempty,url"`
}

// IsZero reports whether no customer fields were supplied.
func (c CustomerData) IsZero() bool {
	return strings.TrimSpace(c.Email) == "" &&
		strings.TrimSpace(c.FirstName) == "" &&
		strings.TrimSpace(c.LastName) == "" &&
		strings.TrimSpace(c.CompanyName) == "" &&
		strings.TrimSpace(c.CompanyWebsite) == ""
}
