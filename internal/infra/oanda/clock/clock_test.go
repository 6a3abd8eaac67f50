package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRealSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Real().Sleep(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRealSleep_Elapses(t *testing.T) {
	start := time.Now()
	require.NoError(t, Real().Sleep(context.Background(), 20*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFake_SleepAdvancesTime(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	require.NoError(t, f.Sleep(context.Background(), 3*time.Second))
	require.NoError(t, f.Sleep(context.Background(), 500*time.Millisecond))
	f.Advance(time.Second)

	require.Equal(t, start.Add(4500*time.Millisecond), f.Now())
	require.Equal(t, []time.Duration{3 * time.Second, 500 * time.Millisecond}, f.Sleeps())
	require.Equal(t, 3500*time.Millisecond, f.Slept())
}
