// Package oanda is the forex API client. Every public operation funnels
// through one retry.Executor, which owns the shared token bucket, the
// backoff policy and error classification.
//
// This package contains:
//   - Client: typed market-data and account operations
//   - endpoint path builders for the v3 REST API
//   - response mapping from OANDA JSON into domain types
package oanda

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/oanda/internal/core/config"
	"github.com/vietddude/oanda/internal/core/domain"
	"github.com/vietddude/oanda/internal/infra/oanda/apierr"
	"github.com/vietddude/oanda/internal/infra/oanda/clock"
	"github.com/vietddude/oanda/internal/infra/oanda/ratelimit"
	"github.com/vietddude/oanda/internal/infra/oanda/retry"
	"github.com/vietddude/oanda/internal/infra/oanda/transport"
	"github.com/vietddude/oanda/internal/metrics"
)

// MaxCandleCount is the most candles OANDA returns for one request.
const MaxCandleCount = 5000

// CandleCache stores historical candle ranges. Implementations only keep
// ranges made of complete candles.
type CandleCache interface {
	GetRange(ctx context.Context, instrument string, g domain.Granularity, from, to time.Time) ([]domain.Candle, bool, error)
	PutRange(ctx context.Context, instrument string, g domain.Granularity, from, to time.Time, candles []domain.Candle) error
}

// Client is safe for concurrent use.
type Client struct {
	cfg       config.OandaConfig
	transport transport.Transport
	http      *transport.HTTPTransport
	limiter   *ratelimit.TokenBucket
	executor  *retry.Executor
	clock     clock.Clock
	cache     CandleCache
	observer  func(retry.State)
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithClock replaces the wall clock used by the rate limiter and backoff.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithCandleCache enables caching of CandlesRange results.
func WithCandleCache(cache CandleCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithObserver receives the retry state of every finished call.
func WithObserver(fn func(retry.State)) Option {
	return func(c *Client) { c.observer = fn }
}

// New validates cfg and builds a client. The configuration is copied and
// never changes afterwards.
func New(cfg config.OandaConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid OANDA config: %w", err)
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.transport == nil {
		c.http = transport.NewHTTPTransport(cfg.BaseURLOrDefault(), cfg.APIKey, cfg.Timeout())
		c.transport = c.http
	} else if ht, ok := c.transport.(*transport.HTTPTransport); ok {
		c.http = ht
	}

	limiter, err := ratelimit.NewTokenBucket(cfg.RequestsPerSecond, c.clock)
	if err != nil {
		return nil, err
	}
	c.limiter = limiter

	c.executor = retry.NewExecutor(limiter, c.clock, retry.Config{
		MaxRetries:      cfg.MaxRetries,
		RetriesEnabled:  cfg.EnableRetries,
		AttemptTimeout:  cfg.Timeout(),
		OverallTimeout:  cfg.OverallTimeout,
		RefundOnFailure: cfg.RefundOnFailure,
		Policy: retry.Policy{
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Multiplier: 2,
			Jitter:     cfg.Jitter,
		},
	})
	c.executor.Observer = c.observer

	return c, nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() config.OandaConfig {
	return c.cfg
}

// Limiter exposes the shared token bucket for diagnostics.
func (c *Client) Limiter() *ratelimit.TokenBucket {
	return c.limiter
}

// TransportHealth reports the HTTP transport figures. ok is false when a
// custom transport is in use.
func (c *Client) TransportHealth() (transport.HealthStatus, bool) {
	if c.http == nil {
		return transport.HealthStatus{}, false
	}
	return c.http.Health(), true
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.http != nil {
		return c.http.Close()
	}
	return nil
}

// CurrentPrice returns the latest quote for instrument. An instrument that
// the pricing response does not contain is an invalid instrument.
func (c *Client) CurrentPrice(ctx context.Context, instrument string) (domain.Tick, error) {
	if err := validateInstrument(instrument); err != nil {
		return domain.Tick{}, err
	}

	ticks, err := c.prices(ctx, []string{instrument}, instrument)
	if err != nil {
		return domain.Tick{}, err
	}
	for _, t := range ticks {
		if t.Instrument == instrument {
			return t, nil
		}
	}
	return domain.Tick{}, apierr.InvalidInstrument(instrument)
}

// CurrentPrices returns the latest quotes for several instruments in one
// request.
func (c *Client) CurrentPrices(ctx context.Context, instruments []string) ([]domain.Tick, error) {
	if len(instruments) == 0 {
		return nil, apierr.InvalidRequest("at least one instrument is required")
	}
	for _, inst := range instruments {
		if err := validateInstrument(inst); err != nil {
			return nil, err
		}
	}

	instrument := ""
	if len(instruments) == 1 {
		instrument = instruments[0]
	}
	return c.prices(ctx, instruments, instrument)
}

func (c *Client) prices(ctx context.Context, instruments []string, instrument string) ([]domain.Tick, error) {
	query := url.Values{"instruments": {strings.Join(instruments, ",")}}
	resp, err := c.get(ctx, EndpointPricing, instrument, PricingPath(c.cfg.AccountID), query)
	if err != nil {
		return nil, err
	}

	payload, err := decode[pricingResponse](resp.Body)
	if err != nil {
		return nil, err
	}

	ticks := make([]domain.Tick, 0, len(payload.Prices))
	for _, p := range payload.Prices {
		tick, err := p.toTick()
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

// Candles returns the most recent count candles, oldest first. The last
// candle may be incomplete.
func (c *Client) Candles(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
	count int,
) ([]domain.Candle, error) {
	if err := validateInstrument(instrument); err != nil {
		return nil, err
	}
	if !g.Valid() {
		return nil, apierr.InvalidRequest("unknown granularity %q", g)
	}
	if count <= 0 {
		return nil, apierr.InvalidRequest("count must be positive, got %d", count)
	}
	if count > MaxCandleCount {
		return nil, apierr.InvalidRequest("count %d exceeds maximum of %d", count, MaxCandleCount)
	}

	query := url.Values{
		"granularity": {g.String()},
		"count":       {strconv.Itoa(count)},
		"price":       {"M"},
	}
	return c.candles(ctx, instrument, g, query)
}

// CandlesRange returns candles opening in [from, to]. When a cache is
// configured, ranges made only of complete candles are served from it.
func (c *Client) CandlesRange(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
	from, to time.Time,
) ([]domain.Candle, error) {
	if err := validateInstrument(instrument); err != nil {
		return nil, err
	}
	if !g.Valid() {
		return nil, apierr.InvalidRequest("unknown granularity %q", g)
	}
	if !from.Before(to) {
		return nil, apierr.InvalidRequest("from %s must be before to %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	if c.cache != nil {
		cached, ok, err := c.cache.GetRange(ctx, instrument, g, from, to)
		switch {
		case err != nil:
			slog.Warn("Candle cache lookup failed", "instrument", instrument, "error", err)
		case ok:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	query := url.Values{
		"granularity": {g.String()},
		"from":        {from.UTC().Format(time.RFC3339)},
		"to":          {to.UTC().Format(time.RFC3339)},
		"price":       {"M"},
	}
	candles, err := c.candles(ctx, instrument, g, query)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.PutRange(ctx, instrument, g, from, to, candles); err != nil {
			slog.Warn("Candle cache store failed", "instrument", instrument, "error", err)
		}
	}
	return candles, nil
}

func (c *Client) candles(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
	query url.Values,
) ([]domain.Candle, error) {
	resp, err := c.get(ctx, EndpointCandles, instrument, CandlesPath(instrument), query)
	if err != nil {
		return nil, err
	}

	payload, err := decode[candlesResponse](resp.Body)
	if err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(payload.Candles))
	for _, raw := range payload.Candles {
		candle, err := raw.toCandle(instrument, g)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// AccountSummary returns the balances of the configured account.
func (c *Client) AccountSummary(ctx context.Context) (domain.AccountSummary, error) {
	resp, err := c.get(ctx, EndpointAccount, "", AccountPath(c.cfg.AccountID), nil)
	if err != nil {
		return domain.AccountSummary{}, err
	}

	payload, err := decode[accountResponse](resp.Body)
	if err != nil {
		return domain.AccountSummary{}, err
	}
	return payload.Account.toSummary()
}

// Instruments lists the instruments tradeable on the configured account.
func (c *Client) Instruments(ctx context.Context) ([]domain.Instrument, error) {
	resp, err := c.get(ctx, EndpointInstruments, "", InstrumentsPath(c.cfg.AccountID), nil)
	if err != nil {
		return nil, err
	}

	payload, err := decode[instrumentsResponse](resp.Body)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Instrument, 0, len(payload.Instruments))
	for _, raw := range payload.Instruments {
		inst, err := raw.toInstrument()
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// HealthCheck reports whether the API is reachable with valid credentials.
// Rejected credentials yield (false, nil); any other failure is returned.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	_, err := c.AccountSummary(ctx)
	switch {
	case err == nil:
		return true, nil
	case apierr.IsAuth(err):
		return false, nil
	default:
		return false, err
	}
}

func (c *Client) get(
	ctx context.Context,
	endpoint, instrument, path string,
	query url.Values,
) (*transport.Response, error) {
	op := func(ctx context.Context) (*transport.Response, error) {
		return c.transport.Send(ctx, transport.Request{
			Method:  http.MethodGet,
			Path:    path,
			Query:   query,
			Timeout: c.cfg.Timeout(),
		})
	}
	return c.executor.Execute(ctx, op, retry.WithEndpoint(endpoint), retry.WithInstrument(instrument))
}

func validateInstrument(name string) error {
	if strings.TrimSpace(name) == "" {
		return apierr.InvalidRequest("instrument is required")
	}
	if strings.ContainsAny(name, ",/?# ") {
		return apierr.InvalidInstrument(name)
	}
	return nil
}
