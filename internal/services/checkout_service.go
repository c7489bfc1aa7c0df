package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mazira-designs/api/internal/checkout"
	"github.com/mazira-designs/api/internal/payments"
	"github.com/mazira-designs/api/internal/repositories"
)

const (
	checkoutMetadataSource   = "website_checkout"
	checkoutSuccessPath      = "/onboarding?success=true&session_id={CHECKOUT_SESSION_ID}"
	checkoutCancelPath       = "/build?canceled=true"
	defaultCheckoutRecordTTL = 7 * 24 * time.Hour
	checkoutMetricNamespace  = "github.com/mazira-designs/api/internal/services/checkout"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutNotFound indicates the provider has no such session.
	ErrCheckoutNotFound = errors.New("checkout: session not found")
)

// cartBuilder abstracts checkout.Builder.
type cartBuilder interface {
	BuildCart(items []PlanLineItem) ([]CheckoutCartItem, error)
}

// checkoutSessionManager abstracts payments.Manager for easier testing.
type checkoutSessionManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	LookupSession(ctx context.Context, paymentCtx payments.PaymentContext, sessionID string) (payments.SessionDetails, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Builder     cartBuilder
	Plans       PlanService
	Payments    checkoutSessionManager
	Records     repositories.CheckoutRecordRepository
	Events      EventPublisher
	SiteBaseURL string
	Currency    string
	RecordTTL   time.Duration
	Meter       metric.Meter
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	builder    cartBuilder
	plans      PlanService
	payments   checkoutSessionManager
	records    repositories.CheckoutRecordRepository
	events     EventPublisher
	successURL string
	cancelURL  string
	currency   string
	recordTTL  time.Duration
	validate   *validator.Validate
	sessions   metric.Int64Counter
	now        func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Builder == nil {
		return nil, errors.New("checkout service: cart builder is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	base, err := normaliseBaseURL(deps.SiteBaseURL)
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.RecordTTL
	if ttl <= 0 {
		ttl = defaultCheckoutRecordTTL
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(checkoutMetricNamespace)
	}
	counter, err := meter.Int64Counter("checkout.sessions",
		metric.WithDescription("Checkout session attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout service: register metric: %w", err)
	}

	return &checkoutService{
		builder:    deps.Builder,
		plans:      deps.Plans,
		payments:   deps.Payments,
		records:    deps.Records,
		events:     deps.Events,
		successURL: base + checkoutSuccessPath,
		cancelURL:  base + checkoutCancelPath,
		currency:   currency,
		recordTTL:  ttl,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		sessions:   counter,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession builds the provider cart from the plan, opens a hosted session and records
// the customer prefill. Validation and resolution failures never reach the provider.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error) {
	if s == nil || s.builder == nil || s.payments == nil {
		return CheckoutSessionResult{}, ErrCheckoutUnavailable
	}

	customer := normaliseCustomer(cmd.Customer)
	if err := s.validate.Struct(customer); err != nil {
		return CheckoutSessionResult{}, fmt.Errorf("%w: %s", ErrCheckoutInvalidInput, validationSummary(err))
	}

	items, err := s.lineItems(ctx, cmd)
	if err != nil {
		return CheckoutSessionResult{}, err
	}

	cart, err := s.builder.BuildCart(items)
	if err != nil {
		s.count(ctx, "rejected")
		var resolution *checkout.ResolutionError
		if errors.As(err, &resolution) {
			s.logger(ctx, "checkout.resolve_failed", map[string]any{
				"category": string(resolution.Item.Category),
				"tier":     resolution.Item.Tier,
				"priceKey": resolution.Item.PriceKey,
			})
		}
		return CheckoutSessionResult{}, err
	}
	total := checkout.Total(cart)

	idempotencyKey := s.checkoutIdempotencyKey(cmd, customer, cart)
	req := payments.CheckoutSessionRequest{
		Currency:          s.currency,
		Customer:          payments.Customer{Email: customer.Email, FirstName: customer.FirstName, LastName: customer.LastName, CompanyName: customer.CompanyName, Website: customer.CompanyWebsite},
		ClientReferenceID: strings.TrimSpace(cmd.VisitorID),
		SuccessURL:        s.successURL,
		CancelURL:         s.cancelURL,
		Metadata:          checkoutMetadata(cart, customer),
		IdempotencyKey:    idempotencyKey,
		Items:             paymentLineItems(cart, s.currency),
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{Currency: s.currency}, req)
	if err != nil {
		s.count(ctx, "failed")
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"items": len(cart),
			"total": total,
			"error": err.Error(),
		})
		return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	s.count(ctx, "created")

	now := s.now()
	s.storeRecord(ctx, CheckoutRecord{
		ID:        ulid.Make().String(),
		SessionID: session.ID,
		Provider:  session.Provider,
		VisitorID: strings.TrimSpace(cmd.VisitorID),
		LineItems: items,
		Total:     total,
		Currency:  s.currency,
		Customer:  customer,
		CreatedAt: now,
		ExpiresAt: now.Add(s.recordTTL),
	})
	s.publish(ctx, CheckoutSessionEvent{
		EventID:        ulid.Make().String(),
		SessionID:      session.ID,
		Provider:       session.Provider,
		VisitorID:      strings.TrimSpace(cmd.VisitorID),
		Total:          total,
		Currency:       s.currency,
		Items:          cart,
		CreatedAt:      now,
		IdempotencyKey: idempotencyKey,
	})

	return CheckoutSessionResult{
		SessionID:   session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt.UTC(),
		Cart:        cart,
		Total:       total,
		Currency:    s.currency,
	}, nil
}

// LookupCheckoutSession returns the provider view plus the stored record when one exists.
func (s *checkoutService) LookupCheckoutSession(ctx context.Context, sessionID string) (CheckoutSessionStatus, error) {
	if s == nil || s.payments == nil {
		return CheckoutSessionStatus{}, ErrCheckoutUnavailable
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return CheckoutSessionStatus{}, ErrCheckoutInvalidInput
	}

	details, err := s.payments.LookupSession(ctx, payments.PaymentContext{Currency: s.currency}, sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return CheckoutSessionStatus{}, ErrCheckoutNotFound
		}
		s.logger(ctx, "checkout.lookup_failed", map[string]any{"sessionId": sessionID, "error": err.Error()})
		return CheckoutSessionStatus{}, ErrCheckoutUnavailable
	}

	status := CheckoutSessionStatus{Session: details}
	if s.records == nil {
		return status, nil
	}
	record, err := s.records.FindBySessionID(ctx, sessionID)
	switch {
	case err == nil:
		status.Record = &record
	case repositories.IsNotFound(err):
	default:
		s.logger(ctx, "checkout.record_lookup_failed", map[string]any{"sessionId": sessionID, "error": err.Error()})
	}
	return status, nil
}

func (s *checkoutService) lineItems(ctx context.Context, cmd CreateCheckoutSessionCommand) ([]PlanLineItem, error) {
	if len(cmd.LineItems) > 0 || cmd.State == nil {
		return cmd.LineItems, nil
	}
	if s.plans == nil {
		return nil, ErrCheckoutUnavailable
	}
	view, err := s.plans.Evaluate(ctx, *cmd.State)
	if err != nil {
		return nil, err
	}
	return view.LineItems, nil
}

func (s *checkoutService) storeRecord(ctx context.Context, record CheckoutRecord) {
	if s.records == nil {
		return
	}
	if err := s.records.Insert(ctx, record); err != nil {
		s.logger(ctx, "checkout.record_failed", map[string]any{
			"sessionId": record.SessionID,
			"error":     err.Error(),
		})
	}
}

func (s *checkoutService) publish(ctx context.Context, event CheckoutSessionEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishCheckoutSession(ctx, event); err != nil {
		s.logger(ctx, "checkout.event_failed", map[string]any{
			"sessionId": event.SessionID,
			"error":     err.Error(),
		})
	}
}

func (s *checkoutService) count(ctx context.Context, outcome string) {
	s.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// checkoutIdempotencyKey prefers the client key and otherwise hashes the visitor, the customer
// and the cart so a double submit maps to the same provider session. customer must already be
// normalised; a corrected email then yields a new key.
func (s *checkoutService) checkoutIdempotencyKey(cmd CreateCheckoutSessionCommand, customer CustomerData, cart []CheckoutCartItem) string {
	if key := strings.TrimSpace(cmd.IdempotencyKey); key != "" {
		return "checkout:" + key
	}
	hasher := sha256.New()
	hasher.Write([]byte(strings.TrimSpace(cmd.VisitorID)))
	for _, field := range []string{
		customer.Email,
		customer.FirstName,
		customer.LastName,
		customer.CompanyName,
		customer.CompanyWebsite,
	} {
		hasher.Write([]byte{2})
		hasher.Write([]byte(field))
	}
	for _, item := range cart {
		hasher.Write([]byte{0})
		hasher.Write([]byte(item.PriceID))
		hasher.Write([]byte(strconv.FormatInt(max(item.Quantity, 1), 10)))
		for _, addOn := range item.AddOnPriceIDs {
			hasher.Write([]byte{1})
			hasher.Write([]byte(addOn))
		}
	}
	hasher.Write([]byte(s.now().Truncate(time.Minute).Format(time.RFC3339)))
	return "checkout:" + hex.EncodeToString(hasher.Sum(nil))[:32]
}

// paymentLineItems expands each cart item into its tier price plus one line per paid platform.
func paymentLineItems(cart []CheckoutCartItem, currency string) []payments.CheckoutLineItem {
	out := make([]payments.CheckoutLineItem, 0, len(cart))
	for _, item := range cart {
		out = append(out, payments.CheckoutLineItem{
			PriceID:     item.PriceID,
			Name:        item.Name,
			Description: item.Description,
			Quantity:    max(item.Quantity, 1),
			Currency:    currency,
		})
		for _, addOn := range item.AddOnPriceIDs {
			out = append(out, payments.CheckoutLineItem{
				PriceID:  addOn,
				Name:     item.Name + " platform",
				Quantity: 1,
				Currency: currency,
			})
		}
	}
	return out
}

func checkoutMetadata(cart []CheckoutCartItem, customer CustomerData) map[string]string {
	metadata := map[string]string{"source": checkoutMetadataSource}
	for _, item := range cart {
		if item.FreePlatform != "" {
			metadata["free_platform_"+string(item.Category)] = item.FreePlatform
		}
	}
	if customer.CompanyName != "" {
		metadata["company_name"] = customer.CompanyName
	}
	if customer.CompanyWebsite != "" {
		metadata["company_website"] = customer.CompanyWebsite
	}
	return metadata
}

func normaliseCustomer(c CustomerData) CustomerData {
	return CustomerData{
		Email:          strings.ToLower(strings.TrimSpace(c.Email)),
		FirstName:      strings.TrimSpace(c.FirstName),
		LastName:       strings.TrimSpace(c.LastName),
		CompanyName:    strings.TrimSpace(c.CompanyName),
		CompanyWebsite: strings.TrimSpace(c.CompanyWebsite),
	}
}

func normaliseBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("site base url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return "", fmt.Errorf("site base url %q is invalid", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

func validationSummary(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}
