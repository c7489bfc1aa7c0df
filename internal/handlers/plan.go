package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mazira-designs/api/internal/configurator"
	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/platform/httpx"
	"github.com/mazira-designs/api/internal/platform/requestctx"
	"github.com/mazira-designs/api/internal/services"
)

const maxPlanBodySize = 8 * 1024

// PlanStore persists the visitor's plan between requests.
type PlanStore interface {
	LoadPlan(r *http.Request) configurator.State
	SavePlan(w http.ResponseWriter, r *http.Request, state configurator.State) error
	ClearPlan(w http.ResponseWriter, r *http.Request) error
}

// PlanHandlers run selector operations against the plan kept in the visitor session.
type PlanHandlers struct {
	plans services.PlanService
	store PlanStore
}

// NewPlanHandlers constructs plan builder handlers.
func NewPlanHandlers(plans services.PlanService, store PlanStore) *PlanHandlers {
	return &PlanHandlers{plans: plans, store: store}
}

// Routes registers plan endpoints under the provided router.
func (h *PlanHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getPlan)
	r.Put("/", h.replacePlan)
	r.Delete("/", h.clearPlan)
	r.Post("/{category}/tier", h.tier)
	r.Post("/{category}/free-platform", h.freePlatform)
	r.Post("/{category}/platforms", h.platforms)
}

type replacePlanRequest struct {
	Selections []services.CategoryState `json:"selections"`
}

type tierRequest struct {
	Tier    string `json:"tier"`
	Toggle  bool   `json:"toggle"`
	Default bool   `json:"default"`
}

type platformRequest struct {
	Platform string `json:"platform"`
	Checked  bool   `json:"checked"`
}

func (h *PlanHandlers) getPlan(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	view, err := h.plans.Evaluate(r.Context(), h.store.LoadPlan(r))
	if err != nil {
		writePlanError(w, r, err)
		return
	}
	// Drop entries the catalog no longer knows so they are not reported again.
	if len(view.Skipped) > 0 {
		if err := h.store.SavePlan(w, r, view.State); err != nil {
			requestctx.Logger(r.Context()).Warn("plan session rewrite failed", zap.Error(err))
		}
	}
	writeJSONResponse(w, http.StatusOK, newPlanResponse(view))
}

func (h *PlanHandlers) replacePlan(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req replacePlanRequest
	if herr := decodeJSONBody(r, maxPlanBodySize, &req, false); herr != nil {
		httpx.WriteError(r.Context(), w, *herr)
		return
	}
	if len(req.Selections) > maxQuoteSelections {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "too many selections", http.StatusBadRequest))
		return
	}

	view, err := h.plans.Evaluate(r.Context(), services.PlanState{Selections: req.Selections})
	if err != nil {
		writePlanError(w, r, err)
		return
	}
	view.Changed = true
	if !h.save(r, w, view.State) {
		return
	}
	writeJSONResponse(w, http.StatusOK, newPlanResponse(view))
}

func (h *PlanHandlers) clearPlan(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	view, err := h.plans.Apply(r.Context(), h.store.LoadPlan(r), services.PlanOperation{Action: services.PlanActionClear})
	if err != nil {
		writePlanError(w, r, err)
		return
	}
	if err := h.store.ClearPlan(w, r); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newPlanResponse(view))
}

func (h *PlanHandlers) tier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if herr := decodeJSONBody(r, maxPlanBodySize, &req, false); herr != nil {
		httpx.WriteError(r.Context(), w, *herr)
		return
	}
	op := services.PlanOperation{Action: services.PlanActionSelectTier, Value: req.Tier}
	switch {
	case req.Toggle:
		op.Action = services.PlanActionToggleTier
	case req.Default:
		op.Action = services.PlanActionDefaultTier
	case strings.TrimSpace(req.Tier) == "":
		op.Action = services.PlanActionClearTier
	}
	h.apply(w, r, op)
}

func (h *PlanHandlers) freePlatform(w http.ResponseWriter, r *http.Request) {
	var req platformRequest
	if herr := decodeJSONBody(r, maxPlanBodySize, &req, false); herr != nil {
		httpx.WriteError(r.Context(), w, *herr)
		return
	}
	h.apply(w, r, services.PlanOperation{Action: services.PlanActionFreePlatform, Value: req.Platform})
}

func (h *PlanHandlers) platforms(w http.ResponseWriter, r *http.Request) {
	var req platformRequest
	if herr := decodeJSONBody(r, maxPlanBodySize, &req, false); herr != nil {
		httpx.WriteError(r.Context(), w, *herr)
		return
	}
	h.apply(w, r, services.PlanOperation{Action: services.PlanActionTogglePlatform, Value: req.Platform, Checked: req.Checked})
}

func (h *PlanHandlers) apply(w http.ResponseWriter, r *http.Request, op services.PlanOperation) {
	if !h.ready(w, r) {
		return
	}
	raw := chi.URLParam(r, "category")
	category, ok := domain.ParseCategory(raw)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("category_not_found", fmt.Sprintf("unknown category %q", raw), http.StatusNotFound))
		return
	}
	op.Category = category

	view, err := h.plans.Apply(r.Context(), h.store.LoadPlan(r), op)
	if err != nil {
		writePlanError(w, r, err)
		return
	}
	if view.Changed && !h.save(r, w, view.State) {
		return
	}
	writeJSONResponse(w, http.StatusOK, newPlanResponse(view))
}

func (h *PlanHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.plans == nil || h.store == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("plan_unavailable", "plan builder is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *PlanHandlers) save(r *http.Request, w http.ResponseWriter, state configurator.State) bool {
	if err := h.store.SavePlan(w, r, state); err != nil {
		writeSessionError(w, r, err)
		return false
	}
	return true
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	requestctx.Logger(r.Context()).Warn("plan session write failed", zap.Error(err))
	httpx.WriteError(r.Context(), w, httpx.NewError("session_error", "failed to store plan", http.StatusInternalServerError))
}
