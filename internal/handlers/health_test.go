package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

type probeBody struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	CommitSHA   string `json:"commitSha"`
	Environment string `json:"environment"`
	Uptime      string `json:"uptime"`
	Checks      map[string]struct {
		Status    string `json:"status"`
		LatencyMS int64  `json:"latencyMs"`
	} `json:"checks"`
	Details []string `json:"details"`
}

func probe(t *testing.T, handler http.HandlerFunc, path string) (int, probeBody) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body probeBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rr.Code, body
}

func TestHealthzReportsBuild(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "1.0.0", CommitSHA: "abc123", Environment: "prod", StartedAt: start}),
		WithHealthClock(func() time.Time { return start.Add(30 * time.Second) }),
	)

	status, body := probe(t, h.Healthz, "/healthz")
	if status != http.StatusOK || body.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %d %s", status, body.Status)
	}
	if body.Version != "1.0.0" || body.CommitSHA != "abc123" || body.Environment != "prod" || body.Uptime != "30s" {
		t.Fatalf("unexpected build payload %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	tests := []struct {
		name    string
		svc     services.SystemService
		status  int
		state   string
		details []string
	}{
		{
			name:   "no system service falls back to liveness",
			status: http.StatusOK,
			state:  domain.HealthStatusOK,
		},
		{
			name: "all checks ok",
			svc: &stubSystemService{report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 10 * time.Millisecond, CheckedAt: now},
				},
			}},
			status: http.StatusOK,
			state:  domain.HealthStatusOK,
		},
		{
			name: "degraded dependency",
			svc: &stubSystemService{report: services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"redis":     {Status: domain.HealthStatusDegraded, Error: "dial tcp: i/o timeout"},
					"firestore": {Status: domain.HealthStatusOK},
				},
			}},
			status:  http.StatusServiceUnavailable,
			state:   domain.HealthStatusDegraded,
			details: []string{"redis: dial tcp: i/o timeout"},
		},
		{
			name:    "report failure",
			svc:     &stubSystemService{err: errors.New("collect failed")},
			status:  http.StatusServiceUnavailable,
			state:   domain.HealthStatusError,
			details: []string{"collect failed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []HealthOption{WithHealthClock(func() time.Time { return now })}
			if tt.svc != nil {
				opts = append(opts, WithHealthSystemService(tt.svc))
			}
			status, body := probe(t, NewHealthHandlers(opts...).Readyz, "/readyz")
			if status != tt.status || body.Status != tt.state {
				t.Fatalf("expected %d %s, got %d %s", tt.status, tt.state, status, body.Status)
			}
			if len(body.Details) != len(tt.details) {
				t.Fatalf("expected details %v, got %v", tt.details, body.Details)
			}
			for i := range tt.details {
				if body.Details[i] != tt.details[i] {
					t.Fatalf("expected details %v, got %v", tt.details, body.Details)
				}
			}
		})
	}
}

func TestReadyzReportsCheckLatency(t *testing.T) {
	svc := &stubSystemService{report: services.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK, Latency: 42 * time.Millisecond}},
	}}
	_, body := probe(t, NewHealthHandlers(WithHealthSystemService(svc)).Readyz, "/readyz")
	if body.Checks["firestore"].LatencyMS != 42 {
		t.Fatalf("expected latency in ms, got %+v", body.Checks)
	}
}
