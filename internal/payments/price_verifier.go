package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/mazira-designs/api/internal/catalog"
)

// PriceDetails captures the live state of a Stripe price and its product.
type PriceDetails struct {
	ID          string
	Active      bool
	Currency    string
	UnitAmount  int64
	ProductName string
	Metadata    catalog.ProductMetadata
}

// StripePriceVerifier retrieves prices from Stripe.
type StripePriceVerifier struct {
	api     stripePriceAPI
	account string
}

// NewStripePriceVerifier constructs a verifier using the provided configuration.
func NewStripePriceVerifier(cfg StripeProviderConfig) (*StripePriceVerifier, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && (cfg.Clients == nil || cfg.Clients.prices == nil) {
		return nil, errors.New("stripe: api key is required")
	}

	var api stripePriceAPI
	if cfg.Clients != nil && cfg.Clients.prices != nil {
		api = cfg.Clients.prices
	} else {
		sc := client.New(apiKey, cfg.Backends)
		api = sc.Prices
	}
	return &StripePriceVerifier{
		api:     api,
		account: strings.TrimSpace(cfg.AccountID),
	}, nil
}

// Lookup fetches a price with its product expanded.
func (v *StripePriceVerifier) Lookup(ctx context.Context, priceID string) (PriceDetails, error) {
	if v == nil {
		return PriceDetails{}, errors.New("stripe: verifier is nil")
	}
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return PriceDetails{}, errors.New("stripe: price id is required")
	}

	params := &stripe.PriceParams{}
	params.Context = ctx
	params.AddExpand("product")
	if v.account != "" {
		params.SetStripeAccount(v.account)
	}

	price, err := v.api.Get(priceID, params)
	if err != nil {
		return PriceDetails{}, fmt.Errorf("stripe: get price %s: %w", priceID, err)
	}
	details := PriceDetails{ID: priceID}
	if price == nil {
		return details, nil
	}
	details.Active = price.Active
	details.Currency = strings.ToLower(string(price.Currency))
	details.UnitAmount = price.UnitAmount
	if product := price.Product; product != nil {
		details.ProductName = product.Name
		details.Metadata = catalog.ParseProductMetadata(product.Metadata)
	}
	return details, nil
}

// PriceLookup is satisfied by StripePriceVerifier.
type PriceLookup interface {
	Lookup(ctx context.Context, priceID string) (PriceDetails, error)
}

// Discrepancy is one disagreement between the catalog and the live account.
type Discrepancy struct {
	Key     string
	PriceID string
	Problem string
}

// VerifyCatalog checks every catalog price against the live account. Each price id is fetched
// once. Free platform entries are only checked for existence.
func VerifyCatalog(ctx context.Context, c *catalog.Catalog, lookup PriceLookup) ([]Discrepancy, error) {
	if c == nil || lookup == nil {
		return nil, errors.New("payments: catalog and lookup are required")
	}
	fetched := make(map[string]PriceDetails)
	failed := make(map[string]error)
	var out []Discrepancy
	for _, entry := range c.Entries() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		details, seen := fetched[entry.PriceID]
		lookupErr := failed[entry.PriceID]
		if !seen && lookupErr == nil {
			var err error
			details, err = lookup.Lookup(ctx, entry.PriceID)
			if err != nil {
				failed[entry.PriceID] = err
				lookupErr = err
			} else {
				fetched[entry.PriceID] = details
			}
		}
		if lookupErr != nil {
			out = append(out, Discrepancy{Key: entry.Key, PriceID: entry.PriceID, Problem: lookupErr.Error()})
			continue
		}
		if !details.Active {
			out = append(out, Discrepancy{Key: entry.Key, PriceID: entry.PriceID, Problem: "price is inactive"})
		}
		if details.Currency != "" && details.Currency != c.Currency() {
			out = append(out, Discrepancy{Key: entry.Key, PriceID: entry.PriceID, Problem: fmt.Sprintf("currency %s, catalog expects %s", details.Currency, c.Currency())})
		}
		if entry.Kind != catalog.EntryFreePlatform && details.UnitAmount != entry.UnitAmount {
			out = append(out, Discrepancy{
				Key:     entry.Key,
				PriceID: entry.PriceID,
				Problem: fmt.Sprintf("amount %s, catalog expects %s", catalog.FormatAmount(details.UnitAmount), catalog.FormatAmount(entry.UnitAmount)),
			})
		}
	}
	return out, nil
}
