package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionStatus enumerates normalised checkout session states shared across providers.
type SessionStatus string

const (
	// SessionOpen indicates the customer has not finished the hosted checkout.
	SessionOpen SessionStatus = "open"
	// SessionComplete indicates the customer completed checkout.
	SessionComplete SessionStatus = "complete"
	// SessionExpired indicates the session can no longer be used.
	SessionExpired SessionStatus = "expired"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrMissingRedirect is returned when a provider creates a session without a redirect URL.
	ErrMissingRedirect = errors.New("payments: provider returned no redirect url")
	// ErrSessionNotFound is returned when a session lookup misses.
	ErrSessionNotFound = errors.New("payments: session not found")
)

// CheckoutLineItem describes a single line item to include in a checkout session. When PriceID is
// set the provider bills its catalog price; otherwise Amount is charged ad hoc.
type CheckoutLineItem struct {
	PriceID     string
	Name        string
	Description string
	Quantity    int64
	Amount      int64
	Currency    string
}

// Customer is the optional prefill for the hosted page.
type Customer struct {
	Email       string
	FirstName   string
	LastName    string
	CompanyName string
	Website     string
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Currency          string
	Customer          Customer
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
	IdempotencyKey    string
	Items             []CheckoutLineItem
}

// CheckoutSession represents the session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// SessionDetails is the provider's view of a session after the redirect back.
type SessionDetails struct {
	ID            string
	Provider      string
	Status        SessionStatus
	Paid          bool
	AmountTotal   int64
	Currency      string
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
	Metadata      map[string]string
}

// Provider defines the contract for payment adapters.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	LookupSession(ctx context.Context, sessionID string) (SessionDetails, error)
}

// Manager routes checkout calls to a named provider.
type Manager struct {
	providers map[string]Provider
	fallback  string
}

// ManagerOption configures NewManager.
type ManagerOption func(*Manager)

// WithDefaultProvider names the provider used when the caller expresses no preference. An empty
// name leaves callers without a fallback unless exactly one provider is registered.
func WithDefaultProvider(name string) ManagerOption {
	return func(m *Manager) { m.fallback = providerKey(name) }
}

// NewManager registers providers by case-insensitive name. "stripe" is the default when present.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{providers: make(map[string]Provider, len(providers))}
	for name, p := range providers {
		key := providerKey(name)
		if key == "" || p == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = p
	}
	if _, ok := m.providers["stripe"]; ok {
		m.fallback = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext carries the caller's routing hint and the store currency.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func providerKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (m *Manager) pick(pc PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	for _, key := range []string{providerKey(pc.PreferredProvider), m.fallback} {
		if p, ok := m.providers[key]; ok && key != "" {
			return key, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCheckoutSession fills the request currency from pc when unset and rejects sessions that
// come back without a redirect URL.
func (m *Manager) CreateCheckoutSession(ctx context.Context, pc PaymentContext, req CheckoutSessionRequest) (CheckoutSession, error) {
	key, provider, err := m.pick(pc)
	if err != nil {
		return CheckoutSession{}, err
	}
	if req.Currency == "" {
		req.Currency = strings.ToLower(strings.TrimSpace(pc.Currency))
	}
	session, err := provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	if strings.TrimSpace(session.RedirectURL) == "" {
		return CheckoutSession{}, fmt.Errorf("%s: %w", key, ErrMissingRedirect)
	}
	session.Provider = key
	return session, nil
}

func (m *Manager) LookupSession(ctx context.Context, pc PaymentContext, sessionID string) (SessionDetails, error) {
	key, provider, err := m.pick(pc)
	if err != nil {
		return SessionDetails{}, err
	}
	details, err := provider.LookupSession(ctx, sessionID)
	if err != nil {
		return SessionDetails{}, err
	}
	details.Provider = key
	return details, nil
}
