package lock

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions configures RedisLocker
type RedisOptions struct {
	// Expiry is how long a lock survives a crashed holder
	Expiry time.Duration
	// Tries is the number of acquire attempts before giving up
	Tries int
	// RetryDelay is the pause between attempts
	RetryDelay time.Duration
}

// DefaultRedisOptions returns the options used when none are configured
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 100 * time.Millisecond,
	}
}

// RedisLocker holds per-key locks in Redis using the redsync algorithm
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker over client. Zero option fields fall
// back to DefaultRedisOptions.
func NewRedisLocker(client redis.UniversalClient, opts RedisOptions, logger *zap.Logger) *RedisLocker {
	def := DefaultRedisOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

// WithLock runs fn while holding key in Redis. Release failures are logged
// and do not change fn's result; an expired lock frees itself.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return unavailable(key, err)
	}
	defer func() {
		// release even if the caller's context was cancelled meanwhile
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			l.logger.Warn("Failed to release lock",
				zap.String("lock_key", key),
				zap.Bool("unlock_ok", ok),
				zap.Error(err),
			)
		}
	}()

	return fn(ctx)
}
