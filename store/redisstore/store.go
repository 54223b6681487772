// Package redisstore provides a Redis-backed replay guard for multi-instance
// deployments. The atomic check-and-set is Redis SET NX, so concurrent
// redemptions of one transaction reference resolve to a single winner across
// all server replicas.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	x402 "github.com/Scottcjn/openclaw-x402"
	"github.com/Scottcjn/openclaw-x402/store"
)

// DefaultKeyPrefix namespaces redemption keys in a shared Redis.
const DefaultKeyPrefix = "x402:redeemed:"

// Store is a Redis-backed replay guard. Entries carry a TTL equal to the
// retention window, so eviction is handled by Redis itself.
type Store struct {
	client    redis.UniversalClient
	retention time.Duration
	prefix    string
}

var _ x402.ReplayStore = (*Store)(nil)

// New creates a Redis-backed replay guard.
func New(client redis.UniversalClient, retention time.Duration) *Store {
	return &Store{
		client:    client,
		retention: retention,
		prefix:    DefaultKeyPrefix,
	}
}

// WithKeyPrefix overrides the key namespace.
func (s *Store) WithKeyPrefix(prefix string) *Store {
	s.prefix = prefix
	return s
}

// Open connects to Redis, pings it to validate the connection, and returns a
// replay guard on top of it.
func Open(ctx context.Context, addr, password string, db int, retention time.Duration) (*Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return New(client, retention), nil
}

// TryRedeem atomically consumes a transaction reference via SET NX.
// Exactly one caller per reference observes true until the key expires.
func (s *Store) TryRedeem(ctx context.Context, transaction, resource string) (bool, error) {
	record := store.RedemptionRecord{
		ID:          uuid.New(),
		Transaction: transaction,
		Resource:    resource,
		RedeemedAt:  time.Now(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("marshal redemption record: %w", err)
	}

	granted, err := s.client.SetNX(ctx, s.prefix+transaction, payload, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return granted, nil
}

// IsRedeemed reports whether a reference is currently recorded as consumed.
func (s *Store) IsRedeemed(ctx context.Context, transaction string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+transaction).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Get returns the redemption record for a reference, if present.
func (s *Store) Get(ctx context.Context, transaction string) (store.RedemptionRecord, bool, error) {
	payload, err := s.client.Get(ctx, s.prefix+transaction).Bytes()
	if err == redis.Nil {
		return store.RedemptionRecord{}, false, nil
	}
	if err != nil {
		return store.RedemptionRecord{}, false, fmt.Errorf("redis get: %w", err)
	}

	var record store.RedemptionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return store.RedemptionRecord{}, false, fmt.Errorf("unmarshal redemption record: %w", err)
	}
	return record, true, nil
}
