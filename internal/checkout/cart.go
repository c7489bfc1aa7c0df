package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mazira-designs/api/internal/catalog"
	domain "github.com/mazira-designs/api/internal/domain"
)

// ErrEmptyCart is matched by *EmptyCartError.
var ErrEmptyCart = errors.New("checkout: cart is empty")

// ErrUnresolved is matched by *ResolutionError.
var ErrUnresolved = errors.New("checkout: line item does not resolve to a price")

// EmptyCartError is returned when checkout is attempted with nothing selected.
type EmptyCartError struct{}

func (*EmptyCartError) Error() string { return ErrEmptyCart.Error() }

// Is lets errors.Is match ErrEmptyCart.
func (*EmptyCartError) Is(target error) bool { return target == ErrEmptyCart }

// ResolutionError names the first line item that could not be priced. No partial cart is built.
type ResolutionError struct {
	Index int
	Item  domain.PlanLineItem
	Key   string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("checkout: line item %d (%s / %s) does not resolve: %v", e.Index, e.Item.Name, e.Item.Tier, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrUnresolved.
func (e *ResolutionError) Is(target error) bool { return target == ErrUnresolved }

// Builder turns plan line items into provider cart items. It performs no I/O.
type Builder struct {
	catalog *catalog.Catalog
}

// NewBuilder returns a builder bound to c.
func NewBuilder(c *catalog.Catalog) (*Builder, error) {
	if c == nil {
		return nil, errors.New("checkout: catalog is required")
	}
	return &Builder{catalog: c}, nil
}

// BuildCart resolves each line item to exactly one cart item. Items carrying a price key are
// resolved by key; older items fall back to their (name, tier) labels.
func (b *Builder) BuildCart(items []domain.PlanLineItem) ([]domain.CheckoutCartItem, error) {
	if len(items) == 0 {
		return nil, &EmptyCartError{}
	}
	cart := make([]domain.CheckoutCartItem, 0, len(items))
	seen := make(map[domain.Category]int, len(items))
	for i, item := range items {
		category, err := b.category(item)
		if err != nil {
			return nil, &ResolutionError{Index: i, Item: item, Key: item.Name, Err: err}
		}
		if prev, dup := seen[category]; dup {
			return nil, &ResolutionError{Index: i, Item: item, Key: item.Name, Err: fmt.Errorf("category already in cart at position %d", prev)}
		}
		seen[category] = i

		cartItem, err := b.resolve(category, item)
		if err != nil {
			var (
				nf       *catalog.NotFoundError
				conflict *platformConflictError
			)
			key := item.PriceKey
			switch {
			case errors.As(err, &nf):
				key = nf.Key
			case errors.As(err, &conflict):
				key = conflict.Key
			}
			return nil, &ResolutionError{Index: i, Item: item, Key: key, Err: err}
		}
		cart = append(cart, cartItem)
	}
	return cart, nil
}

func (b *Builder) category(item domain.PlanLineItem) (domain.Category, error) {
	if item.Category != "" {
		if !item.Category.Valid() {
			return "", fmt.Errorf("unknown category %q", item.Category)
		}
		return item.Category, nil
	}
	category, ok := domain.ParseCategory(item.Name)
	if !ok {
		return "", fmt.Errorf("unknown category %q", item.Name)
	}
	return category, nil
}

func (b *Builder) resolve(category domain.Category, item domain.PlanLineItem) (domain.CheckoutCartItem, error) {
	var (
		tier catalog.Entry
		err  error
	)
	if strings.TrimSpace(item.PriceKey) != "" {
		tier, err = b.catalog.Lookup(item.PriceKey)
		if err == nil && (tier.Category != category || tier.Kind != catalog.EntryTier) {
			err = &catalog.NotFoundError{Key: item.PriceKey, Category: category}
		}
	} else {
		tier, err = b.catalog.ResolveLabel(category, item.Tier)
	}
	if err != nil {
		return domain.CheckoutCartItem{}, err
	}

	cartItem := domain.CheckoutCartItem{
		Category:    category,
		PriceID:     tier.PriceID,
		Name:        category.Name(),
		Description: item.Tier,
		Price:       tier.UnitAmount,
		Quantity:    1,
	}
	if cartItem.Description == "" {
		cartItem.Description = tier.Label
	}

	if category.Kind() != domain.KindPlatform {
		if len(item.AddOnKeys) > 0 || item.FreePlatformKey != "" {
			return domain.CheckoutCartItem{}, fmt.Errorf("category %s does not take platforms", category)
		}
		return b.checkPrice(cartItem, item)
	}

	// A platform is billed at most once per item, and never when it is the free one.
	platforms := make(map[domain.Platform]string, len(item.AddOnKeys)+1)
	if item.FreePlatformKey != "" {
		free, err := b.platformEntry(category, item.FreePlatformKey, catalog.EntryFreePlatform)
		if err != nil {
			return domain.CheckoutCartItem{}, err
		}
		cartItem.FreePlatform = free.Platform.DisplayName()
		platforms[free.Platform] = free.Key
	}
	for _, key := range item.AddOnKeys {
		add, err := b.platformEntry(category, key, catalog.EntryAddPlatform)
		if err != nil {
			return domain.CheckoutCartItem{}, err
		}
		if prev, dup := platforms[add.Platform]; dup {
			return domain.CheckoutCartItem{}, &platformConflictError{Key: key, Previous: prev}
		}
		platforms[add.Platform] = add.Key
		cartItem.AddOnPriceIDs = append(cartItem.AddOnPriceIDs, add.PriceID)
		cartItem.Price += add.UnitAmount
	}
	return b.checkPrice(cartItem, item)
}

type platformConflictError struct {
	Key      string
	Previous string
}

func (e *platformConflictError) Error() string {
	return fmt.Sprintf("%q bills a platform already covered by %q", e.Key, e.Previous)
}

func (b *Builder) platformEntry(category domain.Category, key string, kind catalog.EntryKind) (catalog.Entry, error) {
	entry, err := b.catalog.Lookup(key)
	if err != nil {
		return catalog.Entry{}, err
	}
	if entry.Category != category || entry.Kind != kind {
		return catalog.Entry{}, &catalog.NotFoundError{Key: key, Category: category}
	}
	return entry, nil
}

// checkPrice rejects a line item whose displayed price disagrees with the catalog.
func (b *Builder) checkPrice(cartItem domain.CheckoutCartItem, item domain.PlanLineItem) (domain.CheckoutCartItem, error) {
	if item.Price != 0 && item.Price != cartItem.Price {
		return domain.CheckoutCartItem{}, fmt.Errorf("price %s does not match catalog price %s",
			catalog.FormatAmount(item.Price), catalog.FormatAmount(cartItem.Price))
	}
	return cartItem, nil
}

// Total sums cart item prices.
func Total(cart []domain.CheckoutCartItem) int64 {
	var sum int64
	for _, item := range cart {
		sum += item.Price * max(item.Quantity, 1)
	}
	return sum
}
