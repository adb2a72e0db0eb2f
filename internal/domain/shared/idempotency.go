package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers client-supplied request keys so a retried
// mutation is not executed twice
type IdempotencyStore interface {
	// Claim reserves key for ttl. Returns false if the key is already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim, used when the guarded operation failed and may be retried
	Release(ctx context.Context, key string) error

	// IsClaimed checks whether key is currently held
	IsClaimed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a claimed key blocks replays. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
