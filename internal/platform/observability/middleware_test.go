package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mazira-designs/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" || !sc.IsSampled() {
		t.Fatalf("unexpected span context %+v", sc)
	}

	if _, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/00f067aa0ba902b7"); !ok {
		t.Fatalf("expected hex span id to parse")
	}
	for _, header := range []string{"", "abc/1", "105445aa7843bc8bf206b12000100000", "105445aa7843bc8bf206b12000100000/0"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var info requestctx.TraceInfo
	handler := TraceMiddleware("mazira-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/catalog", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/12345;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if info.ProjectID != "mazira-prod" {
		t.Fatalf("expected project id on trace info, got %+v", info)
	}
	if info.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected trace id from header, got %s", info.TraceID)
	}
}

func TestRequestLoggerMiddlewareLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(RequestLoggerMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/plan/podcasts/tier":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})))

	for _, path := range []string{"/healthz", "/api/v1/plan/podcasts/tier", "/api/v1/checkout/sessions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(requestctx.WithVisitorID(req.Context(), "visitor-1"))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected three completion entries, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.DebugLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, entry := range entries {
		if entry.Level != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], entry.Level)
		}
		if entry.ContextMap()["visitor_id"] != "visitor-1" {
			t.Fatalf("expected visitor id on entry %d, got %v", i, entry.ContextMap())
		}
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("catalog exploded")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/public/catalog", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected envelope %v", body)
	}
	if logs.Len() != 1 || !strings.Contains(logs.All()[0].Message, "panic") {
		t.Fatalf("expected panic log, got %v", logs.All())
	}
}

func TestSanitizeDropsControlCharactersAndTruncates(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"visitor id", SanitizeVisitorID("abc\n\x00def"), "abcdef"},
		{"empty route", SanitizeRoute(""), "/"},
		{"method", SanitizeMethod("GET\r\nX-Forged: 1"), "GETX-Forge"},
		{"multibyte", clean("ééé", 2), "éé"},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}
