package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	session CheckoutSession
	details SessionDetails
	err     error
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	f.lastOp = "create"
	return f.session, f.err
}

func (f *fakeProvider) LookupSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	f.lastOp = "lookup"
	return f.details, f.err
}

type recordingProvider struct {
	fakeProvider
	req CheckoutSessionRequest
}

func (r *recordingProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	r.req = req
	return r.fakeProvider.CreateCheckoutSession(ctx, req)
}

func TestManagerUsesPreferredProvider(t *testing.T) {
	primary := &fakeProvider{session: CheckoutSession{ID: "cs_a", RedirectURL: "https://checkout.stripe.test/a"}}
	sandbox := &fakeProvider{session: CheckoutSession{ID: "cs_b", RedirectURL: "https://checkout.stripe.test/b"}}

	mgr, err := NewManager(map[string]Provider{"stripe": primary, "Stripe-Sandbox": sandbox})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(context.Background(), PaymentContext{PreferredProvider: " stripe-sandbox"}, CheckoutSessionRequest{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != "stripe-sandbox" || sandbox.lastOp != "create" || primary.lastOp != "" {
		t.Fatalf("expected sandbox to answer, got %+v (primary %q)", session, primary.lastOp)
	}
}

func TestManagerFillsCurrencyFromContext(t *testing.T) {
	p := &recordingProvider{fakeProvider: fakeProvider{session: CheckoutSession{ID: "cs_1", RedirectURL: "https://checkout.stripe.test/a"}}}
	mgr, err := NewManager(map[string]Provider{"stripe": p})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := mgr.CreateCheckoutSession(context.Background(), PaymentContext{Currency: " USD"}, CheckoutSessionRequest{}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if p.req.Currency != "usd" {
		t.Fatalf("expected currency usd, got %q", p.req.Currency)
	}

	if _, err := mgr.CreateCheckoutSession(context.Background(), PaymentContext{Currency: "usd"}, CheckoutSessionRequest{Currency: "eur"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if p.req.Currency != "eur" {
		t.Fatalf("explicit currency overwritten: %q", p.req.Currency)
	}
}

func TestManagerRejectsSessionWithoutRedirect(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{session: CheckoutSession{ID: "cs_1"}}

	mgr, err := NewManager(map[string]Provider{"stripe": stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateCheckoutSession(ctx, PaymentContext{}, CheckoutSessionRequest{})
	if !errors.Is(err, ErrMissingRedirect) {
		t.Fatalf("expected ErrMissingRedirect, got %v", err)
	}
}

func TestManagerLookupFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{details: SessionDetails{ID: "cs_1", Status: SessionComplete}}

	mgr, err := NewManager(map[string]Provider{"stripe": stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.LookupSession(ctx, PaymentContext{}, "cs_1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stripe.lastOp != "lookup" {
		t.Fatalf("expected lookup to invoke default provider")
	}
	if details.Provider != "stripe" || details.Status != SessionComplete {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestManagerPropagatesProviderErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	mgr, err := NewManager(map[string]Provider{"stripe": &fakeProvider{err: boom}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.CreateCheckoutSession(ctx, PaymentContext{}, CheckoutSessionRequest{}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[string]Provider{"stripe": &fakeProvider{}, "stripe-sandbox": &fakeProvider{}}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "unknown"}, CheckoutSessionRequest{Currency: "usd"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
