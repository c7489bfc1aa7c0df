package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mazira-designs/api/internal/platform/requestctx"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

const checkoutPath = "/api/v1/checkout/sessions"

func fixedClock() time.Time { return fixedTime }

func checkoutRequest(key, body, visitor string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, checkoutPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if visitor != "" {
		req = req.WithContext(requestctx.WithVisitorID(req.Context(), visitor))
	}
	return req
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error payload: %v (%s)", err, rr.Body.String())
	}
	return body.Error
}

func TestMiddlewareRequiresKey(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a key")
	}))

	rr := serve(handler, checkoutRequest("", `{}`, ""))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "idempotency_key_required" {
		t.Fatalf("expected 400 idempotency_key_required, got %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(handler, checkoutRequest(strings.Repeat("k", maxKeyLength+1), `{}`, ""))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "idempotency_key_invalid" {
		t.Fatalf("expected 400 idempotency_key_invalid, got %d", rr.Code)
	}
}

func TestMiddlewareSkipsUnguardedMethods(t *testing.T) {
	called := false
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	serve(handler, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/sessions/cs_1", nil))
	if !called {
		t.Fatal("expected GET to pass through")
	}
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"url":"https://checkout.stripe.com/c/pay/cs_1"}`))
	}))

	first := serve(handler, checkoutRequest("abc-123", `{"customer":{"email":"a@b.co"}}`, "v1"))
	second := serve(handler, checkoutRequest("abc-123", `{"customer":{"email":"a@b.co"}}`, "v1"))

	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replayed 201, got %d headers=%v", second.Code, second.Header())
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content type to replay, got %q", second.Header().Get("Content-Type"))
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical body, got %s vs %s", second.Body.String(), first.Body.String())
	}
	if first.Header().Get(replayHeaderName) != "" {
		t.Fatal("first response must not be marked as a replay")
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if rr := serve(handler, checkoutRequest("same-key", `{"a":1}`, "")); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rr.Code)
	}
	rr := serve(handler, checkoutRequest("same-key", `{"a":2}`, ""))
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "idempotency_key_conflict" {
		t.Fatalf("expected 409 conflict, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestMiddlewareRejectsInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(fixedClock))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is held")
	}))

	req := checkoutRequest("pending-key", `{}`, "")
	if _, err := store.Claim(context.Background(), keyFor(req, "pending-key", []byte(`{}`)), fixedTime, time.Hour); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	rr := serve(handler, req)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "idempotency_in_progress" {
		t.Fatalf("expected 409 in progress, got %d", rr.Code)
	}
}

func TestMiddlewareScopesKeysPerVisitor(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, visitor := range []string{"visitor-a", "visitor-b"} {
		if rr := serve(handler, checkoutRequest("shared-key", `{}`, visitor)); rr.Code != http.StatusCreated {
			t.Fatalf("unexpected status %d for %s", rr.Code, visitor)
		}
	}
	if calls != 2 {
		t.Fatalf("expected both visitors to reach the handler, got %d", calls)
	}
}

func TestMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := serve(handler, checkoutRequest("retry-key", `{}`, ""))
	second := serve(handler, checkoutRequest("retry-key", `{}`, ""))
	if first.Code != http.StatusBadGateway || second.Code != http.StatusCreated {
		t.Fatalf("expected retry after 502, got %d then %d", first.Code, second.Code)
	}
}

func TestMiddlewareAbandonsKeyWhenCompleteFails(t *testing.T) {
	store := &failingStore{completeErr: errors.New("firestore unavailable")}
	logs := &captureLogger{}
	handler := Middleware(store, WithClock(fixedClock), WithLogger(logs))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := serve(handler, checkoutRequest("fail-key", `{}`, ""))
	if rr.Code != http.StatusInternalServerError || errorCode(t, rr) != "idempotency_store_error" {
		t.Fatalf("expected 500 store error, got %d", rr.Code)
	}
	if !store.abandoned {
		t.Fatal("expected the claim to be abandoned")
	}
	if len(logs.lines) == 0 {
		t.Fatal("expected the failure to be logged")
	}
}

func TestMiddlewareReportsUnavailableStore(t *testing.T) {
	store := &failingStore{claimErr: errors.New("dial tcp: connection refused")}
	handler := Middleware(store)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run when the store is down")
	}))
	rr := serve(handler, checkoutRequest("k", `{}`, ""))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMiddlewareRejectsOversizedBody(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := serve(handler, checkoutRequest("big", strings.Repeat("x", maxBodyBytes+1), ""))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i, ttl := range []time.Duration{time.Minute, time.Minute, time.Hour} {
		key := Key{Value: string(rune('a' + i)), Fingerprint: "fp"}
		if _, err := store.Claim(ctx, key, fixedTime, ttl); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	removed, err := store.Sweep(ctx, fixedTime.Add(2*time.Minute), 1)
	if err != nil || removed != 1 {
		t.Fatalf("expected one removal under limit, got %d (%v)", removed, err)
	}
	removed, _ = store.Sweep(ctx, fixedTime.Add(2*time.Minute), 0)
	if removed != 1 || store.Len() != 1 {
		t.Fatalf("expected the hour-long claim to survive, removed=%d len=%d", removed, store.Len())
	}
}

func TestMemoryStoreReclaimsExpiredKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := Key{Value: "k", Fingerprint: "fp"}
	if _, err := store.Claim(ctx, key, fixedTime, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	other := key
	other.Fingerprint = "other"
	claim, err := store.Claim(ctx, other, fixedTime.Add(time.Minute), time.Minute)
	if err != nil || claim.State != Fresh {
		t.Fatalf("expected expired key to be reclaimable, got %s (%v)", claim.State, err)
	}
}

type failingStore struct {
	claimErr    error
	completeErr error
	abandoned   bool
}

func (s *failingStore) Claim(context.Context, Key, time.Time, time.Duration) (Claim, error) {
	if s.claimErr != nil {
		return Claim{}, s.claimErr
	}
	return Claim{State: Fresh}, nil
}

func (s *failingStore) Complete(context.Context, Key, Response, time.Time, time.Duration) error {
	return s.completeErr
}

func (s *failingStore) Abandon(context.Context, Key) error {
	s.abandoned = true
	return nil
}

type captureLogger struct {
	lines []string
}

func (l *captureLogger) Printf(format string, args ...any) {
	l.lines = append(l.lines, format)
}
