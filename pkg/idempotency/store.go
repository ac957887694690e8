// Package idempotency remembers which message IDs were already handled so
// redelivered messages can be skipped.
package idempotency

import (
	"context"
	"time"

	"github.com/ehr/inventory-ledger/pkg/config"
)

// DefaultTTL is used when the configured TTL is not positive.
const DefaultTTL = 24 * time.Hour

// Store records processed message IDs.
type Store interface {
	// MarkProcessed atomically claims id for ttl. It returns false when id
	// was already claimed.
	MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// Unmark releases a claim so a failed message can be retried.
	Unmark(ctx context.Context, id string) error

	Close() error
}

// New returns a Redis store when cfg.URL is set and an in-memory store otherwise.
func New(ctx context.Context, cfg config.RedisConfig) (Store, error) {
	if cfg.URL == "" {
		return NewMemoryStore(), nil
	}
	return NewRedisStore(ctx, cfg.URL)
}

// TTL returns the configured TTL or DefaultTTL.
func TTL(cfg config.RedisConfig) time.Duration {
	if cfg.IdempotencyTTL <= 0 {
		return DefaultTTL
	}
	return cfg.IdempotencyTTL
}
