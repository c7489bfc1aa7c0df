package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mazira-designs/api/internal/catalog"
	"github.com/mazira-designs/api/internal/configurator"
	"github.com/mazira-designs/api/internal/services"
)

// memoryPlanStore keeps one plan regardless of the request cookies.
type memoryPlanStore struct {
	state   configurator.State
	saves   int
	cleared bool
	err     error
}

func (s *memoryPlanStore) LoadPlan(*http.Request) configurator.State { return s.state }

func (s *memoryPlanStore) SavePlan(_ http.ResponseWriter, _ *http.Request, state configurator.State) error {
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.state = state
	return nil
}

func (s *memoryPlanStore) ClearPlan(http.ResponseWriter, *http.Request) error {
	s.cleared = true
	s.state = configurator.State{}
	return nil
}

func newTestPlanService(t *testing.T) services.PlanService {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	svc, err := services.NewPlanService(services.PlanServiceDeps{Catalog: c})
	if err != nil {
		t.Fatalf("NewPlanService: %v", err)
	}
	return svc
}

func newPlanRouter(t *testing.T, store *memoryPlanStore) chi.Router {
	t.Helper()
	router := chi.NewRouter()
	router.Route("/plan", NewPlanHandlers(newTestPlanService(t), store).Routes)
	return router
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, planResponse) {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var resp planResponse
	if rr.Code == http.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rr, resp
}

func TestPlanHandlersBuildPlan(t *testing.T) {
	store := &memoryPlanStore{}
	router := newPlanRouter(t, store)

	rr, resp := doJSON(t, router, http.MethodPost, "/plan/social_posts/tier", `{"tier":"price_1RBAj8Aog87WCP1EZThpEO52"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !resp.Changed || resp.Total != 15000 || resp.Currency != "usd" {
		t.Fatalf("unexpected plan %+v", resp)
	}

	_, resp = doJSON(t, router, http.MethodPost, "/plan/social_posts/platforms", `{"platform":"tiktok","checked":true}`)
	if resp.Total != 16000 {
		t.Fatalf("expected paid platform surcharge, got %d", resp.Total)
	}

	_, resp = doJSON(t, router, http.MethodPost, "/plan/blog/tier", `{"tier":"4 Blog Posts"}`)
	if len(resp.LineItems) != 2 || resp.Total != 34000 {
		t.Fatalf("unexpected plan after blog tier %+v", resp)
	}
	if store.saves != 3 {
		t.Fatalf("expected three saves, got %d", store.saves)
	}

	rr, resp = doJSON(t, router, http.MethodGet, "/plan", "")
	if rr.Code != http.StatusOK || resp.Total != 34000 {
		t.Fatalf("expected stored plan, got %d %+v", rr.Code, resp)
	}
}

func TestPlanHandlersDefaultTier(t *testing.T) {
	store := &memoryPlanStore{}
	router := newPlanRouter(t, store)

	rr, resp := doJSON(t, router, http.MethodPost, "/plan/blog_posts/tier", `{"default":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !resp.Changed || resp.Total != 10000 || store.saves != 1 {
		t.Fatalf("expected the first blog tier saved, got %+v (saves=%d)", resp, store.saves)
	}
}

func TestPlanHandlersIgnoredOperationDoesNotSave(t *testing.T) {
	store := &memoryPlanStore{}
	router := newPlanRouter(t, store)

	rr, resp := doJSON(t, router, http.MethodPost, "/plan/social_posts/tier", `{"tier":"99 Posts"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp.Changed || resp.Total != 0 {
		t.Fatalf("expected unchanged empty plan, got %+v", resp)
	}
	if store.saves != 0 {
		t.Fatalf("expected no save for ignored operation")
	}
}

func TestPlanHandlersErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "unknown category", method: http.MethodPost, path: "/plan/podcasts/tier", body: `{"tier":"x"}`, status: http.StatusNotFound},
		{name: "platforms on tier category", method: http.MethodPost, path: "/plan/blog_posts/platforms", body: `{"platform":"tiktok","checked":true}`, status: http.StatusBadRequest},
		{name: "toggle outside instagram", method: http.MethodPost, path: "/plan/blog_posts/tier", body: `{"tier":"4 Blog Posts","toggle":true}`, status: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/plan/blog_posts/tier", body: `{"level":"4"}`, status: http.StatusBadRequest},
		{name: "missing body", method: http.MethodPut, path: "/plan", status: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newPlanRouter(t, &memoryPlanStore{})
			rr, _ := doJSON(t, router, tc.method, tc.path, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPlanHandlersReplaceAndClear(t *testing.T) {
	store := &memoryPlanStore{}
	router := newPlanRouter(t, store)

	body := `{"selections":[{"category":"blog_posts","tier":"4 Blog Posts"},{"category":"podcasts","tier":"x"}]}`
	rr, resp := doJSON(t, router, http.MethodPut, "/plan", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp.Total != 18000 || len(resp.Skipped) != 1 {
		t.Fatalf("unexpected replaced plan %+v", resp)
	}
	if len(store.state.Selections) != 1 {
		t.Fatalf("expected normalised state to be saved, got %+v", store.state)
	}

	rr, resp = doJSON(t, router, http.MethodDelete, "/plan", "")
	if rr.Code != http.StatusOK || resp.Total != 0 || !store.cleared {
		t.Fatalf("expected cleared plan, got %d %+v", rr.Code, resp)
	}
}

func TestPlanHandlersSessionWriteFailure(t *testing.T) {
	store := &memoryPlanStore{err: errors.New("cookie too large")}
	router := newPlanRouter(t, store)

	rr, _ := doJSON(t, router, http.MethodPost, "/plan/blog_posts/tier", `{"tier":"4 Blog Posts"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "session_error" {
		t.Fatalf("expected session_error, got %v", body["error"])
	}
}
