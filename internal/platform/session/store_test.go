package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mazira-designs/api/internal/configurator"
	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/platform/requestctx"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{Secret: testSecret, NewID: func() string { return "visitor-1" }})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestNewStoreRejectsShortSecret(t *testing.T) {
	if _, err := NewStore(Config{Secret: "short"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestMiddlewareAssignsVisitorID(t *testing.T) {
	store := newTestStore(t)
	var seen string
	handler := store.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.VisitorID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil))
	if seen != "visitor-1" {
		t.Fatalf("expected visitor-1, got %q", seen)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != defaultCookieName || !cookies[0].HttpOnly {
		t.Fatalf("unexpected cookies %+v", cookies)
	}

	// A returning visitor keeps the id and gets no new cookie.
	store.newID = func() string { return "visitor-2" }
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "visitor-1" {
		t.Fatalf("expected stable visitor id, got %q", seen)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("expected no cookie refresh")
	}
}

func TestMiddlewareReplacesTamperedCookie(t *testing.T) {
	store := newTestStore(t)
	var seen string
	handler := store.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.VisitorID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: defaultCookieName, Value: "garbage"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "visitor-1" || len(rr.Result().Cookies()) != 1 {
		t.Fatalf("expected fresh session, got %q", seen)
	}
}

func TestPlanRoundTrip(t *testing.T) {
	store := newTestStore(t)
	state := configurator.State{Selections: []configurator.CategoryState{{
		Category:     domain.CategorySocialPosts,
		Tier:         "10 Social Posts",
		FreePlatform: domain.PlatformInstagram,
		Additional:   []domain.Platform{domain.PlatformTikTok},
	}}}

	rr := httptest.NewRecorder()
	if err := store.SavePlan(rr, httptest.NewRequest(http.MethodPut, "/api/v1/plan", nil), state); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	cookie := rr.Result().Cookies()[0]
	if strings.Contains(cookie.Value, "Social") {
		t.Fatalf("expected encrypted cookie value")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil)
	req.AddCookie(cookie)
	got := store.LoadPlan(req)
	if len(got.Selections) != 1 || got.Selections[0].Additional[0] != domain.PlatformTikTok {
		t.Fatalf("unexpected plan %+v", got)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/plan", nil)
	req.AddCookie(cookie)
	if err := store.ClearPlan(rr, req); err != nil {
		t.Fatalf("ClearPlan: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil)
	req.AddCookie(rr.Result().Cookies()[0])
	if got := store.LoadPlan(req); len(got.Selections) != 0 {
		t.Fatalf("expected empty plan after clear, got %+v", got)
	}
}
