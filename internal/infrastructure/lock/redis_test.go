package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisLocker(t *testing.T, opts RedisOptions) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, opts, zap.NewNop()), mr
}

func TestNewRedisLocker_Defaults(t *testing.T) {
	l, _ := newRedisLocker(t, RedisOptions{})
	assert.Equal(t, DefaultRedisOptions(), l.opts)
}

func TestRedisLocker_HoldsKeyDuringFn(t *testing.T) {
	l, mr := newRedisLocker(t, RedisOptions{})
	ctx := context.Background()

	err := l.WithLock(ctx, "ledger:customer:a", func(context.Context) error {
		assert.True(t, mr.Exists("ledger:customer:a"))
		return nil
	})

	require.NoError(t, err)
	assert.False(t, mr.Exists("ledger:customer:a"))
}

func TestRedisLocker_ReturnsFnErrorAndReleases(t *testing.T) {
	l, mr := newRedisLocker(t, RedisOptions{})
	want := errors.New("boom")

	err := l.WithLock(context.Background(), "k", func(context.Context) error { return want })

	assert.ErrorIs(t, err, want)
	assert.False(t, mr.Exists("k"))
}

func TestRedisLocker_BusyKey(t *testing.T) {
	l, mr := newRedisLocker(t, RedisOptions{Tries: 2, RetryDelay: 5 * time.Millisecond})
	require.NoError(t, mr.Set("k", "someone-else"))

	called := false
	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.False(t, called)
	// the foreign holder keeps its lock
	got, _ := mr.Get("k")
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_SerializesWriters(t *testing.T) {
	l, _ := newRedisLocker(t, RedisOptions{Tries: 200, RetryDelay: 2 * time.Millisecond})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counter int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "k", func(context.Context) error {
				mu.Lock()
				v := counter
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				counter = v + 1
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, counter)
}
