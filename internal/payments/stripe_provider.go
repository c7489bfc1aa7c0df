package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePriceAPI interface {
	Get(id string, params *stripe.PriceParams) (*stripe.Price, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	prices   stripePriceAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	// SessionTTL sets expires_at on new sessions. Stripe accepts 30 minutes to 24 hours.
	SessionTTL time.Duration
	Backends   *stripe.Backends
	Logger     StripeLogger
	Clock      func() time.Time
	Clients    *stripeClients
}

// StripeProvider implements Provider using Stripe Checkout.
type StripeProvider struct {
	api     stripeClients
	account string
	ttl     time.Duration
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			prices:   sc.Prices,
		}
	}
	if clients.sessions == nil || clients.prices == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		ttl:     cfg.SessionTTL,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a one-off payment Checkout session.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("stripe: at least one line item is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if ref := strings.TrimSpace(req.ClientReferenceID); ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}
	if p.ttl >= 30*time.Minute && p.ttl <= 24*time.Hour {
		params.ExpiresAt = stripe.Int64(p.clock().Add(p.ttl).Unix())
	}
	if len(req.Metadata) > 0 {
		params.Metadata = copyMetadata(req.Metadata)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(req.Metadata),
		}
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		quantity := stripe.Int64(max(item.Quantity, 1))
		if id := strings.TrimSpace(item.PriceID); id != "" {
			lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
				Price:    stripe.String(id),
				Quantity: quantity,
			})
			continue
		}
		if item.Amount <= 0 {
			return CheckoutSession{}, fmt.Errorf("stripe: line item %q has neither price nor amount", item.Name)
		}
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: quantity,
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(defaultString(item.Currency, req.Currency))),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.Description != "" {
			line.PriceData.ProductData.Description = stripe.String(item.Description)
		}
		lineItems = append(lineItems, line)
	}
	params.LineItems = lineItems

	session, err := p.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	if strings.TrimSpace(session.URL) == "" {
		return CheckoutSession{}, fmt.Errorf("stripe: session %s: %w", session.ID, ErrMissingRedirect)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"lineItems": len(lineItems),
		"currency":  session.Currency,
	})

	expiresAt := p.clock().Add(24 * time.Hour)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:          session.ID,
		Provider:    "stripe",
		RedirectURL: session.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

// LookupSession retrieves a Checkout session by id.
func (p *StripeProvider) LookupSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	if p == nil {
		return SessionDetails{}, errors.New("stripe: provider is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionDetails{}, ErrSessionNotFound
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	session, err := p.api.sessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return SessionDetails{}, fmt.Errorf("stripe: %s: %w", sessionID, ErrSessionNotFound)
		}
		return SessionDetails{}, fmt.Errorf("stripe: lookup checkout session: %w", err)
	}
	return stripeSessionDetails(session), nil
}

func stripeSessionDetails(session *stripe.CheckoutSession) SessionDetails {
	if session == nil {
		return SessionDetails{}
	}
	status := SessionOpen
	switch session.Status {
	case stripe.CheckoutSessionStatusComplete:
		status = SessionComplete
	case stripe.CheckoutSessionStatusExpired:
		status = SessionExpired
	}
	details := SessionDetails{
		ID:            session.ID,
		Provider:      "stripe",
		Status:        status,
		Paid:          session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   session.AmountTotal,
		Currency:      strings.ToLower(string(session.Currency)),
		CustomerEmail: session.CustomerEmail,
		Metadata:      copyMetadata(session.Metadata),
	}
	if cd := session.CustomerDetails; cd != nil {
		if cd.Email != "" {
			details.CustomerEmail = cd.Email
		}
		details.CustomerName = cd.Name
		details.CustomerPhone = cd.Phone
	}
	return details
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
