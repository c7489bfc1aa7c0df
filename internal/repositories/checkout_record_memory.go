package repositories

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/mazira-designs/api/internal/domain"
)

// MemoryCheckoutRecordRepository keeps checkout records in process. Expired records are dropped
// lazily on read and by Sweep.
type MemoryCheckoutRecordRepository struct {
	mu      sync.RWMutex
	records map[string]domain.CheckoutRecord
	now     func() time.Time
}

var _ CheckoutRecordRepository = (*MemoryCheckoutRecordRepository)(nil)

// NewMemoryCheckoutRecordRepository constructs an empty store. A nil clock uses time.Now.
func NewMemoryCheckoutRecordRepository(clock func() time.Time) *MemoryCheckoutRecordRepository {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCheckoutRecordRepository{
		records: make(map[string]domain.CheckoutRecord),
		now:     clock,
	}
}

func (r *MemoryCheckoutRecordRepository) Insert(_ context.Context, record domain.CheckoutRecord) error {
	key := strings.TrimSpace(record.SessionID)
	if key == "" {
		return &storeError{op: "checkout_records.insert", msg: "session id is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[key]; ok && !r.expired(existing) {
		return conflictError("checkout_records.insert", key)
	}
	record.LineItems = cloneLineItems(record.LineItems)
	r.records[key] = record
	return nil
}

func (r *MemoryCheckoutRecordRepository) FindBySessionID(_ context.Context, sessionID string) (domain.CheckoutRecord, error) {
	key := strings.TrimSpace(sessionID)
	r.mu.RLock()
	record, ok := r.records[key]
	r.mu.RUnlock()
	if !ok || r.expired(record) {
		return domain.CheckoutRecord{}, notFoundError("checkout_records.get", key)
	}
	record.LineItems = cloneLineItems(record.LineItems)
	return record, nil
}

// Sweep removes expired records and returns how many were dropped.
func (r *MemoryCheckoutRecordRepository) Sweep(context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, record := range r.records {
		if r.expired(record) {
			delete(r.records, key)
			removed++
		}
	}
	return removed
}

func (r *MemoryCheckoutRecordRepository) expired(record domain.CheckoutRecord) bool {
	return !record.ExpiresAt.IsZero() && !r.now().Before(record.ExpiresAt)
}

func cloneLineItems(items []domain.PlanLineItem) []domain.PlanLineItem {
	if items == nil {
		return nil
	}
	out := make([]domain.PlanLineItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
