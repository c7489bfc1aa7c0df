package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/repositories"
)

// BuildInfo is the release metadata reported by /healthz and /readyz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators for NewSystemService. CacheFor > 0 reuses a
// collected report for that long, so tight probe loops do not hammer Firestore and Redis.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	CacheFor         time.Duration
}

type systemService struct {
	repo     repositories.HealthRepository
	now      func() time.Time
	build    BuildInfo
	cacheFor time.Duration

	probes singleflight.Group
	mu     sync.Mutex
	cached domain.SystemHealthReport
	until  time.Time
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		repo:     deps.HealthRepository,
		now:      func() time.Time { return clock().UTC() },
		build:    deps.Build,
		cacheFor: deps.CacheFor,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

// HealthReport collects dependency checks, at most one collection in flight, and stamps the
// build metadata onto the result.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	now := s.now()
	if report, ok := s.fromCache(now); ok {
		return s.stamp(report, now), nil
	}

	v, err, _ := s.probes.Do("collect", func() (any, error) {
		return s.repo.Collect(ctx)
	})
	if err != nil {
		return SystemHealthReport{}, err
	}
	report := v.(domain.SystemHealthReport)
	if s.cacheFor > 0 {
		s.mu.Lock()
		s.cached, s.until = report, now.Add(s.cacheFor)
		s.mu.Unlock()
	}
	return s.stamp(report, now), nil
}

func (s *systemService) fromCache(now time.Time) (domain.SystemHealthReport, bool) {
	if s.cacheFor <= 0 {
		return domain.SystemHealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.until.IsZero() || !now.Before(s.until) {
		return domain.SystemHealthReport{}, false
	}
	return s.cached, true
}

func (s *systemService) stamp(report domain.SystemHealthReport, now time.Time) domain.SystemHealthReport {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = worstStatus(report.Checks)
	}
	return report
}

// worstStatus folds check statuses; unknown statuses count as degraded.
func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
