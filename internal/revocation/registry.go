// Package revocation records token ids that must be rejected until their natural expiry.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces revoked token ids in Redis.
const DefaultKeyPrefix = "blacklist:"

// Registry is the revocation contract consumed by the auth service.
type Registry interface {
	// Revoke records tokenID until the given instant. Idempotent.
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRegistry stores one key per revoked token id with a TTL equal to the token's remaining
// lifetime, so entries never outlive the tokens they block.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRegistry returns a registry over client. An empty prefix selects DefaultKeyPrefix
// and a nil clock selects time.Now.
func NewRedisRegistry(client *redis.Client, prefix string, now func() time.Time) *RedisRegistry {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRegistry{client: client, prefix: prefix, now: now}
}

func (r *RedisRegistry) key(tokenID string) string {
	return r.prefix + tokenID
}

// Revoke sets the key with TTL until-now. A token already past until needs no entry.
func (r *RedisRegistry) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return errors.New("revocation: empty token id")
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(tokenID), "1", roundUpMillis(ttl)).Err(); err != nil {
		return fmt.Errorf("revocation: set %s: %w", tokenID, err)
	}
	return nil
}

// roundUpMillis rounds d up to Redis's millisecond expiry resolution, saturating instead of
// wrapping for durations near the maximum.
func roundUpMillis(d time.Duration) time.Duration {
	if r := d.Truncate(time.Millisecond) + time.Millisecond; r > d {
		return r
	}
	return d.Truncate(time.Millisecond)
}

// IsRevoked reports whether tokenID currently has an entry.
func (r *RedisRegistry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: exists %s: %w", tokenID, err)
	}
	return n > 0, nil
}

// Ping checks connectivity for readiness probes.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// NewClient builds a Redis client from a redis:// or rediss:// URL.
func NewClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("revocation: redis url is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("revocation: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
