// Package retry drives every logical API call through the rate limiter,
// the transport and the error classifier, retrying transient failures with
// exponential backoff.
//
// A logical call moves through
//
//	Idle -> AwaitingPermit -> InFlight -> Success
//	                                   -> ClassifyError -> RetryWait -> AwaitingPermit
//	                                                    -> Failure
//
// and returns either the successful response or exactly one *apierr.Error.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/oanda/internal/infra/oanda/apierr"
	"github.com/vietddude/oanda/internal/infra/oanda/clock"
	"github.com/vietddude/oanda/internal/infra/oanda/transport"
	"github.com/vietddude/oanda/internal/metrics"
)

// DefaultMaxRetries is used when Config.MaxRetries is negative.
const DefaultMaxRetries = 3

// Limiter is the admission gate consulted before every attempt.
type Limiter interface {
	Acquire(ctx context.Context) (time.Duration, error)
	Refund()
	Available() float64
}

// Operation performs one physical attempt.
type Operation func(ctx context.Context) (*transport.Response, error)

// Config controls the retry loop.
type Config struct {
	MaxRetries     int
	RetriesEnabled bool

	// AttemptTimeout bounds each physical attempt. Zero leaves it to the
	// transport.
	AttemptTimeout time.Duration
	// OverallTimeout bounds the whole logical call including rate limiter
	// waits and backoff. Zero means no overall bound.
	OverallTimeout time.Duration

	// RefundOnFailure returns the attempt's token to the limiter when the
	// attempt fails.
	RefundOnFailure bool

	Policy Policy
}

// DefaultConfig returns three retries with the default backoff policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		RetriesEnabled: true,
		Policy:         DefaultPolicy,
	}
}

// State describes one finished logical call.
type State struct {
	CallID     string
	Endpoint   string
	Instrument string
	Attempts   int
	MaxRetries int
	Delays     []time.Duration
	Waited     time.Duration
	Elapsed    time.Duration
	Err        *apierr.Error
}

// Executor is safe for concurrent use.
type Executor struct {
	limiter    Limiter
	clock      clock.Clock
	classifier apierr.Classifier
	cfg        Config

	// Observer, when set, receives the state of every finished call.
	Observer func(State)
}

// NewExecutor creates an executor. A nil clock means the wall clock.
func NewExecutor(limiter Limiter, c clock.Clock, cfg Config) *Executor {
	if c == nil {
		c = clock.Real()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	return &Executor{
		limiter: limiter,
		clock:   c,
		classifier: apierr.Classifier{
			Now: c.Now,
		},
		cfg: cfg,
	}
}

// Config returns the executor configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

type callOptions struct {
	endpoint   string
	instrument string
}

// CallOption annotates a logical call.
type CallOption func(*callOptions)

// WithEndpoint names the call in logs and metrics.
func WithEndpoint(name string) CallOption {
	return func(o *callOptions) { o.endpoint = name }
}

// WithInstrument records the instrument the call is about. It names the
// offending input when the server rejects the instrument.
func WithInstrument(name string) CallOption {
	return func(o *callOptions) { o.instrument = name }
}

// Execute runs op until it succeeds, fails terminally or runs out of
// retries. The returned error, when non-nil, is always an *apierr.Error.
func (e *Executor) Execute(ctx context.Context, op Operation, opts ...CallOption) (*transport.Response, error) {
	o := callOptions{endpoint: "unknown"}
	for _, opt := range opts {
		opt(&o)
	}

	state := State{
		CallID:     uuid.NewString(),
		Endpoint:   o.endpoint,
		Instrument: o.instrument,
		MaxRetries: e.maxRetries(),
	}
	start := e.clock.Now()
	metrics.RequestsTotal.WithLabelValues(o.endpoint).Inc()

	resp, err := e.run(ctx, op, o, &state, start)

	state.Elapsed = e.clock.Now().Sub(start)
	state.Err = err
	metrics.RequestLatency.WithLabelValues(o.endpoint).Observe(state.Elapsed.Seconds())
	e.finish(state)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Executor) run(
	ctx context.Context,
	op Operation,
	o callOptions,
	state *State,
	start time.Time,
) (*transport.Response, *apierr.Error) {
	callerCtx := ctx

	// budget is what an overall timeout reports: the configured bound, or
	// the caller's own deadline when that is sooner.
	budget := e.cfg.OverallTimeout
	if d, ok := callerCtx.Deadline(); ok {
		if left := time.Until(d); budget <= 0 || left < budget {
			budget = max(left, 0)
		}
	}

	var deadline time.Time
	if e.cfg.OverallTimeout > 0 {
		deadline = start.Add(e.cfg.OverallTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.OverallTimeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		// AwaitingPermit
		if e.limiter != nil {
			waited, err := e.limiter.Acquire(ctx)
			state.Waited += waited
			if waited > 0 {
				metrics.RateLimitWait.Observe(waited.Seconds())
			}
			if err != nil {
				return nil, e.interrupted(callerCtx, budget, err)
			}
			metrics.RateLimitTokens.Set(e.limiter.Available())
		}
		if e.pastDeadline(deadline, 0) {
			return nil, e.overallTimeout(budget, nil)
		}

		// InFlight
		state.Attempts++
		resp, sendErr := e.attempt(ctx, op)

		// ClassifyError
		cerr := e.classifier.Classify(apierr.Outcome{
			Response:   resp,
			Err:        sendErr,
			Instrument: o.instrument,
		})
		if cerr == nil {
			metrics.AttemptsTotal.WithLabelValues(o.endpoint, "success").Inc()
			return resp, nil
		}
		metrics.AttemptsTotal.WithLabelValues(o.endpoint, cerr.Kind.String()).Inc()

		if e.cfg.RefundOnFailure && e.limiter != nil {
			e.limiter.Refund()
		}

		if ctx.Err() != nil {
			return nil, e.interrupted(callerCtx, budget, ctx.Err())
		}
		if cerr.Kind == apierr.KindTimeout && cerr.Timeout == 0 {
			cerr.Timeout = e.cfg.AttemptTimeout
		}

		if !e.cfg.RetriesEnabled || !cerr.Retryable() || cerr.ClientError() {
			return nil, cerr
		}
		if !e.cfg.Policy.ShouldRetry(cerr, attempt, state.MaxRetries) {
			return nil, apierr.RetriesExhausted(cerr, state.Attempts)
		}

		// RetryWait
		delay := e.cfg.Policy.DelayFor(cerr, attempt)
		if e.pastDeadline(deadline, delay) {
			return nil, e.overallTimeout(budget, cerr)
		}

		slog.Warn("Retrying OANDA request",
			"call_id", state.CallID,
			"endpoint", o.endpoint,
			"attempt", state.Attempts,
			"max_retries", state.MaxRetries,
			"kind", cerr.Kind.String(),
			"delay", delay,
			"error", cerr,
		)
		metrics.RetriesTotal.WithLabelValues(cerr.Kind.String()).Inc()
		state.Delays = append(state.Delays, delay)

		if err := e.clock.Sleep(ctx, delay); err != nil {
			return nil, e.interrupted(callerCtx, budget, err)
		}
	}
}

func (e *Executor) attempt(ctx context.Context, op Operation) (*transport.Response, error) {
	if e.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
	}
	return op(ctx)
}

func (e *Executor) maxRetries() int {
	if !e.cfg.RetriesEnabled {
		return 0
	}
	return e.cfg.MaxRetries
}

// pastDeadline reports whether waiting d more would reach deadline.
func (e *Executor) pastDeadline(deadline time.Time, d time.Duration) bool {
	if deadline.IsZero() {
		return false
	}
	return !e.clock.Now().Add(d).Before(deadline)
}

// interrupted maps a context error hit at a suspension point. Caller
// cancellation is reported as such; any expired deadline is terminal.
func (e *Executor) interrupted(callerCtx context.Context, budget time.Duration, err error) *apierr.Error {
	if errors.Is(callerCtx.Err(), context.Canceled) {
		return apierr.Canceled(callerCtx.Err())
	}
	t := e.overallTimeout(budget, nil)
	t.Err = err
	return t
}

func (e *Executor) overallTimeout(budget time.Duration, last *apierr.Error) *apierr.Error {
	t := apierr.Timeout(budget, true, nil)
	if last != nil {
		t.Err = last
	}
	return t
}

func (e *Executor) finish(state State) {
	if state.Err == nil {
		slog.Debug("OANDA request completed",
			"call_id", state.CallID,
			"endpoint", state.Endpoint,
			"attempts", state.Attempts,
			"delays", state.Delays,
			"elapsed", state.Elapsed,
		)
	} else {
		metrics.ErrorsTotal.WithLabelValues(state.Err.Kind.String()).Inc()
		slog.Debug("OANDA request failed",
			"call_id", state.CallID,
			"endpoint", state.Endpoint,
			"attempts", state.Attempts,
			"delays", state.Delays,
			"elapsed", state.Elapsed,
			"kind", state.Err.Kind.String(),
			"error", state.Err,
		)
	}

	if e.Observer != nil {
		e.Observer(state)
	}
}
