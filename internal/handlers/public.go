package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/platform/httpx"
	"github.com/mazira-designs/api/internal/services"
)

const (
	catalogCacheControl = "public, max-age=300"
	maxQuoteBodySize    = 8 * 1024
	maxQuoteSelections  = 32
)

// PublicHandlers exposes the catalog and ad-hoc quotes. Nothing here touches the visitor session.
type PublicHandlers struct {
	plans services.PlanService

	etagOnce sync.Once
	etag     string
}

// NewPublicHandlers constructs handlers for public catalog endpoints.
func NewPublicHandlers(plans services.PlanService) *PublicHandlers {
	return &PublicHandlers{plans: plans}
}

// Routes registers public endpoints under the provided router.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/catalog", h.listCatalog)
	r.Get("/catalog/{category}", h.getCategory)
	r.Post("/quote", h.quote)
}

type catalogResponse struct {
	Categories []services.CategoryView `json:"categories"`
}

type quoteRequest struct {
	Selections []services.CategoryState `json:"selections"`
}

type planResponse struct {
	LineItems []services.PlanLineItem `json:"lineItems"`
	Total     int64                   `json:"total"`
	Currency  string                  `json:"currency"`
	Skipped   []string                `json:"skipped,omitempty"`
	Changed   bool                    `json:"changed"`
}

func newPlanResponse(view services.PlanView) planResponse {
	items := view.LineItems
	if items == nil {
		items = []services.PlanLineItem{}
	}
	return planResponse{
		LineItems: items,
		Total:     view.Total,
		Currency:  view.Currency,
		Skipped:   view.Skipped,
		Changed:   view.Changed,
	}
}

func (h *PublicHandlers) listCatalog(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	views := h.plans.Catalog(r.Context())
	etag := h.catalogETag(views)
	w.Header().Set("Cache-Control", catalogCacheControl)
	if etag != "" {
		w.Header().Set("ETag", etag)
		if matchesETag(r, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, catalogResponse{Categories: views})
}

func (h *PublicHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	raw := chi.URLParam(r, "category")
	category, ok := domain.ParseCategory(raw)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("category_not_found", fmt.Sprintf("unknown category %q", raw), http.StatusNotFound))
		return
	}
	view, err := h.plans.Category(r.Context(), category)
	if err != nil {
		writePlanError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", catalogCacheControl)
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *PublicHandlers) quote(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if herr := decodeJSONBody(r, maxQuoteBodySize, &req, false); herr != nil {
		httpx.WriteError(r.Context(), w, *herr)
		return
	}
	if len(req.Selections) > maxQuoteSelections {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "too many selections", http.StatusBadRequest))
		return
	}

	view, err := h.plans.Quote(r.Context(), req.Selections)
	if err != nil {
		writePlanError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newPlanResponse(view))
}

// catalogETag is computed once; the catalog is immutable for the life of the process.
func (h *PublicHandlers) catalogETag(views []services.CategoryView) string {
	h.etagOnce.Do(func() {
		data, err := json.Marshal(views)
		if err != nil {
			return
		}
		sum := sha256.Sum256(data)
		h.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
	})
	return h.etag
}

func matchesETag(r *http.Request, etag string) bool {
	if etag == "" || r == nil {
		return false
	}
	raw := r.Header.Get("If-None-Match")
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, candidate := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "*" || trimmed == etag {
			return true
		}
	}
	return false
}

func writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrPlanInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPlanNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("plan_error", "failed to evaluate plan", http.StatusInternalServerError))
	}
}
