package repositories

import (
	"context"

	domain "github.com/mazira-designs/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CheckoutRecordRepository stores what was sent to the payment provider, keyed by session id.
type CheckoutRecordRepository interface {
	// Insert persists a new record. A record with the same session id returns a conflict error.
	Insert(ctx context.Context, record domain.CheckoutRecord) error
	// FindBySessionID returns a RepositoryError with IsNotFound when the record is absent or expired.
	FindBySessionID(ctx context.Context, sessionID string) (domain.CheckoutRecord, error)
}

// HealthRepository reports dependency status for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether err is a RepositoryError signalling a missing record.
func IsNotFound(err error) bool {
	repoErr, ok := asRepositoryError(err)
	return ok && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError signalling a duplicate or stale write.
func IsConflict(err error) bool {
	repoErr, ok := asRepositoryError(err)
	return ok && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a RepositoryError signalling a backend outage.
func IsUnavailable(err error) bool {
	repoErr, ok := asRepositoryError(err)
	return ok && repoErr.IsUnavailable()
}
