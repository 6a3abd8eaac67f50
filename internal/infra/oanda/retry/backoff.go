package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/oanda/internal/infra/oanda/apierr"
)

// Policy decides whether and when a failed attempt is retried.
type Policy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter is the fraction (0..1) of each delay that may be randomly
	// removed, so the jittered delay stays within [d*(1-Jitter), d].
	Jitter float64

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultPolicy is 100ms doubling up to 30s, without jitter.
var DefaultPolicy = Policy{
	BaseDelay:  100 * time.Millisecond,
	MaxDelay:   30 * time.Second,
	Multiplier: 2.0,
}

// NextDelay returns min(MaxDelay, BaseDelay * Multiplier^attempt), reduced
// by jitter when configured. attempt is 0-indexed.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy.BaseDelay
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = DefaultPolicy.Multiplier
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultPolicy.MaxDelay
	}

	delay := float64(base) * math.Pow(mult, float64(attempt))
	if delay > float64(maxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		delay = float64(maxDelay)
	}

	if p.Jitter > 0 {
		jitter := math.Min(p.Jitter, 1)
		delay -= delay * jitter * p.random()
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether a failure at attempt (0-indexed) may be
// retried given maxRetries. Authentication and client-input failures are
// never retried.
func (p Policy) ShouldRetry(err *apierr.Error, attempt, maxRetries int) bool {
	if err == nil || attempt >= maxRetries {
		return false
	}
	if err.ClientError() {
		return false
	}
	return err.Retryable()
}

// DelayFor returns the wait before the attempt following a failed one. A
// server-provided Retry-After is a floor on the exponential delay.
func (p Policy) DelayFor(err *apierr.Error, attempt int) time.Duration {
	delay := p.NextDelay(attempt)
	if err != nil && err.Kind == apierr.KindRateLimit && err.RetryAfter > delay {
		delay = err.RetryAfter
	}
	return delay
}

func (p Policy) random() float64 {
	if p.Rand != nil {
		return p.Rand()
	}
	return rand.Float64()
}
