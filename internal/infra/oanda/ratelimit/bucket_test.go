package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/oanda/internal/infra/oanda/clock"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTokenBucket_InvalidRate(t *testing.T) {
	_, err := NewTokenBucket(0, nil)
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = NewTokenBucket(-5, nil)
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestTokenBucket_BurstUpToCapacity(t *testing.T) {
	fc := clock.NewFake(epoch)
	b, err := NewTokenBucket(10, fc)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		waited, err := b.Acquire(context.Background())
		require.NoError(t, err)
		require.Zero(t, waited)
	}
	require.Empty(t, fc.Sleeps())
}

func TestTokenBucket_WaitsForRefill(t *testing.T) {
	fc := clock.NewFake(epoch)
	b, err := NewTokenBucket(10, fc)
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		_, err := b.Acquire(context.Background())
		require.NoError(t, err)
	}

	// 5 extra permits at 10/s need at least 500ms of refill.
	require.GreaterOrEqual(t, fc.Now().Sub(epoch), 500*time.Millisecond)
	require.Less(t, fc.Now().Sub(epoch), 600*time.Millisecond)
}

func TestTokenBucket_RateTwoThirdCallWaits(t *testing.T) {
	fc := clock.NewFake(epoch)
	b, err := NewTokenBucket(2, fc)
	require.NoError(t, err)

	w1, err := b.Acquire(context.Background())
	require.NoError(t, err)
	w2, err := b.Acquire(context.Background())
	require.NoError(t, err)
	require.Zero(t, w1)
	require.Zero(t, w2)

	w3, err := b.Acquire(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, w3, 500*time.Millisecond)
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	fc := clock.NewFake(epoch)
	b, err := NewTokenBucket(5, fc)
	require.NoError(t, err)

	fc.Advance(time.Hour)
	require.InDelta(t, 5.0, b.Available(), 1e-9)
}

func TestTokenBucket_ConcurrentAcquireNoOverAdmission(t *testing.T) {
	fc := clock.NewFake(epoch)
	const rate = 20
	b, err := NewTokenBucket(rate, fc)
	require.NoError(t, err)

	const workers = 16
	const perWorker = 10

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := b.Acquire(context.Background())
				assert.NoError(t, err)
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	elapsed := fc.Now().Sub(epoch).Seconds()
	require.Equal(t, int64(workers*perWorker), granted.Load())
	require.LessOrEqual(t, float64(granted.Load()), rate+rate*elapsed+1e-6)
	require.Equal(t, uint64(workers*perWorker), b.Stats().Acquired)
}

func TestTokenBucket_RealClockEnforcement(t *testing.T) {
	b, err := NewTokenBucket(10, nil)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 15; i++ {
		_, err := b.Acquire(context.Background())
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestTokenBucket_AcquireCancelled(t *testing.T) {
	b, err := NewTokenBucket(1, nil)
	require.NoError(t, err)
	require.True(t, b.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = b.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucket_TryAcquire(t *testing.T) {
	fc := clock.NewFake(epoch)
	b, err := NewTokenBucket(5, fc)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, b.TryAcquire())
	}
	require.False(t, b.TryAcquire())

	fc.Advance(300 * time.Millisecond)
	require.True(t, b.TryAcquire())
}

func TestTokenBucket_Refund(t *testing.T) {
	fc := clock.NewFake(epoch)
	b, err := NewTokenBucket(2, fc)
	require.NoError(t, err)

	require.True(t, b.TryAcquire())
	b.Refund()
	b.Refund()
	require.InDelta(t, 2.0, b.Available(), 1e-9)
}
