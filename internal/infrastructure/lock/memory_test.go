package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerKey(t *testing.T) {
	id := uuid.MustParse("7b0b6a4e-2a43-4f41-8f8e-2c4f2b8f6d11")
	assert.Equal(t, "ledger:customer:7b0b6a4e-2a43-4f41-8f8e-2c4f2b8f6d11", CustomerKey(id))
}

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "ledger:customer:a", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxSeen)
	assert.Zero(t, l.Len())
}

func TestMemoryLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(ctx, "a", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := make(chan error, 1)
	go func() {
		done <- l.WithLock(ctx, "b", func(context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	close(release)
}

func TestMemoryLocker_ContextCancelledWhileWaiting(t *testing.T) {
	l := NewMemoryLocker()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "a", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := l.WithLock(ctx, "a", func(context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.False(t, called)
}

func TestMemoryLocker_ReturnsFnError(t *testing.T) {
	l := NewMemoryLocker()
	want := errors.New("boom")

	err := l.WithLock(context.Background(), "a", func(context.Context) error { return want })

	assert.ErrorIs(t, err, want)
	// the key is free again
	assert.NoError(t, l.WithLock(context.Background(), "a", func(context.Context) error { return nil }))
	assert.Zero(t, l.Len())
}
