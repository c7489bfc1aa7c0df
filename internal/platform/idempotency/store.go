// Package idempotency replays checkout responses for retried requests that carry the same
// Idempotency-Key, so a double-clicked "Pay" button never opens two Stripe sessions.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL bounds how long a key is remembered when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// ErrFingerprintMismatch reports a key reused for a different request body or route.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

// Key identifies one idempotent request. Scope partitions keys per visitor.
type Key struct {
	Value       string
	Scope       string
	Fingerprint string
}

// ID is the storage identifier; the fingerprint is compared, not hashed in.
func (k Key) ID() string {
	sum := sha256.Sum256([]byte(k.Scope + "\x00" + k.Value))
	return hex.EncodeToString(sum[:])
}

// State is the outcome of a Claim.
type State int

const (
	// Fresh means the caller owns the key and must Complete or Abandon it.
	Fresh State = iota
	// Replay means a finished response is stored under the key.
	Replay
	// InFlight means another request holds the key.
	InFlight
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Replay:
		return "replay"
	case InFlight:
		return "in_flight"
	}
	return "unknown"
}

// Record is what a store keeps per key.
type Record struct {
	Fingerprint string              `json:"fingerprint"`
	Done        bool                `json:"done"`
	Status      int                 `json:"status,omitempty"`
	Header      map[string][]string `json:"header,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Claim pairs a State with the record that produced it.
type Claim struct {
	State  State
	Record Record
}

// Response is the handler output captured for replay.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists claims and completed responses.
type Store interface {
	Claim(ctx context.Context, key Key, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key Key, resp Response, now time.Time, ttl time.Duration) error
	Abandon(ctx context.Context, key Key) error
}

func claimFor(existing Record, key Key) (Claim, error) {
	if existing.Fingerprint != key.Fingerprint {
		return Claim{}, ErrFingerprintMismatch
	}
	if existing.Done {
		return Claim{State: Replay, Record: existing}, nil
	}
	return Claim{State: InFlight, Record: existing}, nil
}

func pendingRecord(key Key, now time.Time, ttl time.Duration) Record {
	return Record{Fingerprint: key.Fingerprint, CreatedAt: now, ExpiresAt: now.Add(effectiveTTL(ttl))}
}

func completedRecord(prev Record, key Key, resp Response, now time.Time, ttl time.Duration) Record {
	created := prev.CreatedAt
	if created.IsZero() {
		created = now
	}
	var body []byte
	if len(resp.Body) > 0 {
		body = append([]byte(nil), resp.Body...)
	}
	return Record{
		Fingerprint: key.Fingerprint,
		Done:        true,
		Status:      resp.Status,
		Header:      replayableHeader(resp.Header),
		Body:        body,
		CreatedAt:   created,
		ExpiresAt:   now.Add(effectiveTTL(ttl)),
	}
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// hopHeaders are connection scoped and never replayed.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Content-Length":      true,
	"Date":                true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Set-Cookie":          true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func replayableHeader(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		name = http.CanonicalHeaderKey(name)
		if hopHeaders[name] {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
