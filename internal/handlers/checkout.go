package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mazira-designs/api/internal/checkout"
	"github.com/mazira-designs/api/internal/payments"
	"github.com/mazira-designs/api/internal/platform/httpx"
	"github.com/mazira-designs/api/internal/platform/requestctx"
	"github.com/mazira-designs/api/internal/services"
)

const (
	maxCheckoutRequestBody = 16 * 1024
	idempotencyHeader      = "Idempotency-Key"
)

// CheckoutHandlers exposes hosted checkout endpoints.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	plans    PlanStore
}

// NewCheckoutHandlers constructs checkout handlers. plans may be nil when clients always send
// line items explicitly.
func NewCheckoutHandlers(checkout services.CheckoutService, plans PlanStore) *CheckoutHandlers {
	return &CheckoutHandlers{
		checkout: checkout,
		plans:    plans,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/sessions", h.createSession)
	r.Get("/sessions/{sessionID}", h.getSession)
}

type checkoutSessionRequest struct {
	LineItems []services.PlanLineItem `json:"lineItems"`
	Customer  services.CustomerData   `json:"customer"`
}

type checkoutSessionResponse struct {
	SessionID string                      `json:"sessionId"`
	Provider  string                      `json:"provider"`
	URL       string                      `json:"url"`
	ExpiresAt string                      `json:"expiresAt,omitempty"`
	Cart      []services.CheckoutCartItem `json:"cart"`
	Total     int64                       `json:"total"`
	Currency  string                      `json:"currency"`
}

type checkoutStatusResponse struct {
	SessionID     string                  `json:"sessionId"`
	Provider      string                  `json:"provider"`
	Status        string                  `json:"status"`
	Paid          bool                    `json:"paid"`
	AmountTotal   int64                   `json:"amountTotal"`
	Currency      string                  `json:"currency"`
	CustomerEmail string                  `json:"customerEmail,omitempty"`
	CustomerName  string                  `json:"customerName,omitempty"`
	Customer      *services.CustomerData  `json:"customer,omitempty"`
	LineItems     []services.PlanLineItem `json:"lineItems,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req checkoutSessionRequest
	if herr := decodeJSONBody(r, maxCheckoutRequestBody, &req, true); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}

	cmd := services.CreateCheckoutSessionCommand{
		VisitorID:      requestctx.VisitorID(ctx),
		LineItems:      req.LineItems,
		Customer:       req.Customer,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	}
	if len(cmd.LineItems) == 0 && h.plans != nil {
		state := h.plans.LoadPlan(r)
		cmd.State = &state
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	payload := checkoutSessionResponse{
		SessionID: session.SessionID,
		Provider:  session.Provider,
		URL:       session.RedirectURL,
		ExpiresAt: formatTime(session.ExpiresAt),
		Cart:      session.Cart,
		Total:     session.Total,
		Currency:  session.Currency,
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func (h *CheckoutHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	status, err := h.checkout.LookupCheckoutSession(ctx, sessionID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	resp := checkoutStatusResponse{
		SessionID:     status.Session.ID,
		Provider:      status.Session.Provider,
		Status:        string(status.Session.Status),
		Paid:          status.Session.Paid,
		AmountTotal:   status.Session.AmountTotal,
		Currency:      status.Session.Currency,
		CustomerEmail: status.Session.CustomerEmail,
		CustomerName:  status.Session.CustomerName,
	}
	// Prefill data is shown to the visitor who started checkout, or to anyone holding the id
	// of a completed session (the onboarding redirect).
	if rec := status.Record; rec != nil {
		owner := rec.VisitorID != "" && rec.VisitorID == requestctx.VisitorID(ctx)
		if owner || status.Session.Status == payments.SessionComplete {
			customer := rec.Customer
			resp.Customer = &customer
			resp.LineItems = rec.LineItems
		}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var resolution *checkout.ResolutionError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "select at least one item before checkout", http.StatusBadRequest))
	case errors.As(err, &resolution):
		httpx.WriteError(ctx, w, httpx.NewError("unresolved_item", "an item in the plan is no longer available", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{
				"index":    resolution.Index,
				"category": string(resolution.Item.Category),
				"name":     resolution.Item.Name,
				"tier":     resolution.Item.Tier,
			}))
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrPlanInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment session could not be created", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
