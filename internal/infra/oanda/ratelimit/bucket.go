// Package ratelimit implements the client-side admission gate that bounds the
// outbound request rate.
//
// The bucket holds up to Capacity tokens and refills continuously at Capacity
// tokens per second. Callers never get rejected: Acquire suspends until a
// token is available. The only error is cancellation of the caller's context.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/vietddude/oanda/internal/infra/oanda/clock"
)

// DefaultRequestsPerSecond is the bucket capacity when none is configured.
const DefaultRequestsPerSecond = 100

// ErrInvalidRate is returned for a non-positive rate.
var ErrInvalidRate = errors.New("requests per second must be greater than 0")

// Stats is a point-in-time view of the bucket.
type Stats struct {
	Capacity   float64
	Tokens     float64
	RefillRate float64
	Acquired   uint64
	Waited     uint64
	TotalWait  time.Duration
}

// TokenBucket is safe for concurrent use. One bucket is shared by every
// logical call issued through a client.
type TokenBucket struct {
	clock clock.Clock

	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time

	acquired  uint64
	waited    uint64
	totalWait time.Duration
}

// NewTokenBucket creates a full bucket admitting requestsPerSecond requests
// per second. A nil clock means the wall clock.
func NewTokenBucket(requestsPerSecond int, c clock.Clock) (*TokenBucket, error) {
	if requestsPerSecond <= 0 {
		return nil, ErrInvalidRate
	}
	if c == nil {
		c = clock.Real()
	}

	capacity := float64(requestsPerSecond)
	return &TokenBucket{
		clock:      c,
		capacity:   capacity,
		tokens:     capacity,
		refillRate: capacity,
		lastRefill: c.Now(),
	}, nil
}

// Acquire waits until a token is available and consumes it. It returns the
// total time spent waiting. The mutex is never held while sleeping, so
// concurrent acquirers racing for a refilled token may be served in any order.
func (b *TokenBucket) Acquire(ctx context.Context) (time.Duration, error) {
	var waited time.Duration

	for {
		wait := b.reserve()
		if wait == 0 {
			b.recordWait(waited)
			return waited, nil
		}

		if err := b.clock.Sleep(ctx, wait); err != nil {
			b.recordWait(waited)
			return waited, err
		}
		waited += wait
	}
}

// TryAcquire consumes a token only if one is available right now.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		b.acquired++
		return true
	}
	return false
}

// Refund returns one token to the bucket, never exceeding capacity.
func (b *TokenBucket) Refund() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	b.tokens = math.Min(b.capacity, b.tokens+1)
}

// Available returns the current (refilled) token count.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

// Stats returns a snapshot of the bucket counters.
func (b *TokenBucket) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return Stats{
		Capacity:   b.capacity,
		Tokens:     b.tokens,
		RefillRate: b.refillRate,
		Acquired:   b.acquired,
		Waited:     b.waited,
		TotalWait:  b.totalWait,
	}
}

// reserve refills, then either consumes a token (returning 0) or returns how
// long the caller must wait for one to accumulate.
func (b *TokenBucket) reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		b.acquired++
		return 0
	}

	seconds := (1 - b.tokens) / b.refillRate
	wait := time.Duration(math.Ceil(seconds * float64(time.Second)))
	if wait <= 0 {
		wait = time.Nanosecond
	}
	return wait
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}

	b.tokens = math.Min(b.capacity, b.tokens+elapsed.Seconds()*b.refillRate)
	b.lastRefill = now
}

func (b *TokenBucket) recordWait(d time.Duration) {
	if d <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.waited++
	b.totalWait += d
}
