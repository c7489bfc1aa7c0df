package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newPublicRouter(t *testing.T) chi.Router {
	t.Helper()
	router := chi.NewRouter()
	router.Route("/public", NewPublicHandlers(newTestPlanService(t)).Routes)
	return router
}

func TestPublicHandlersCatalogETag(t *testing.T) {
	router := newPublicRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/public/catalog", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body catalogResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Categories) != 8 {
		t.Fatalf("expected 8 categories, got %d", len(body.Categories))
	}
	etag := rr.Header().Get("ETag")
	if etag == "" || rr.Header().Get("Cache-Control") != catalogCacheControl {
		t.Fatalf("expected caching headers, got %v", rr.Header())
	}

	req := httptest.NewRequest(http.MethodGet, "/public/catalog", nil)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rr.Code)
	}
}

func TestPublicHandlersCategory(t *testing.T) {
	router := newPublicRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/public/catalog/short_form_video", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var view struct {
		Category  string `json:"category"`
		Kind      string `json:"kind"`
		Surcharge int64  `json:"surcharge"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Category != "short_form_video" || view.Kind != "platform" || view.Surcharge != 2000 {
		t.Fatalf("unexpected category view %+v", view)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/public/catalog/podcasts", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPublicHandlersQuote(t *testing.T) {
	router := newPublicRouter(t)

	body := `{"selections":[{"category":"social_posts","tier":"10 Social Posts","freePlatform":"instagram","additional":["tiktok"]},{"category":"backlinks","tier":"DA 60+"}]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/public/quote", bytes.NewBufferString(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp planResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 15000+1000+128500 || len(resp.LineItems) != 2 || len(resp.Skipped) != 0 {
		t.Fatalf("unexpected quote %+v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/public/quote", bytes.NewBufferString(`{"selections":`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rr.Code)
	}
}
