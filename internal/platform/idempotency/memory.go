package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process. Records only disappear through Sweep, so callers
// running it long term should schedule Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Claim(_ context.Context, key Key, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	id := key.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[id]; ok && !existing.expired(now) {
		return claimFor(existing, key)
	}
	record := pendingRecord(key, now, ttl)
	s.records[id] = record
	return Claim{State: Fresh, Record: record}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key Key, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := key.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[id]
	if ok && prev.Fingerprint != key.Fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = completedRecord(prev, key, resp, now, ttl)
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.records, key.ID())
	s.mu.Unlock()
	return nil
}

// Sweep drops up to limit expired records and reports how many went. limit <= 0 means all.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of tracked keys, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
