package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "idempotency:"

type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps each Record as a JSON value whose Redis TTL matches its expiry, so it
// needs no sweeping.
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore wraps client. An empty prefix uses "idempotency:".
func NewRedisStore(client redisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Claim takes the key with SETNX and falls back to the stored record when it is taken.
func (s *RedisStore) Claim(ctx context.Context, key Key, now time.Time, ttl time.Duration) (Claim, error) {
	record := pendingRecord(key, now.UTC(), ttl)
	payload, err := json.Marshal(record)
	if err != nil {
		return Claim{}, err
	}
	id := s.prefix + key.ID()

	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.client.SetNX(ctx, id, payload, effectiveTTL(ttl)).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("idempotency: claim: %w", err)
		}
		if created {
			return Claim{State: Fresh, Record: record}, nil
		}
		existing, err := s.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return Claim{}, err
		}
		return claimFor(existing, key)
	}
	return Claim{}, fmt.Errorf("idempotency: claim: key %s kept expiring", id)
}

// Complete overwrites the pending record and refreshes the TTL.
func (s *RedisStore) Complete(ctx context.Context, key Key, resp Response, now time.Time, ttl time.Duration) error {
	id := s.prefix + key.ID()
	prev, err := s.load(ctx, id)
	switch {
	case errors.Is(err, redis.Nil):
		prev = Record{}
	case err != nil:
		return err
	case prev.Fingerprint != key.Fingerprint:
		return ErrFingerprintMismatch
	}

	payload, err := json.Marshal(completedRecord(prev, key, resp, now.UTC(), ttl))
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, id, payload, effectiveTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Abandon(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, s.prefix+key.ID()).Err(); err != nil {
		return fmt.Errorf("idempotency: abandon: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, id string) (Record, error) {
	raw, err := s.client.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, redis.Nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, nil
}
