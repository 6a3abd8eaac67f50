package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks logical calls per endpoint
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oanda_requests_total",
			Help: "Total number of logical API calls",
		},
		[]string{"endpoint"},
	)

	// AttemptsTotal tracks physical attempts per endpoint and outcome
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oanda_attempts_total",
			Help: "Total number of physical HTTP attempts",
		},
		[]string{"endpoint", "outcome"},
	)

	// RetriesTotal tracks retries by the error kind that caused them
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oanda_retries_total",
			Help: "Total number of retried attempts",
		},
		[]string{"kind"},
	)

	// ErrorsTotal tracks terminal errors returned to callers
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oanda_errors_total",
			Help: "Total number of failed logical calls",
		},
		[]string{"kind"},
	)

	// RequestLatency tracks logical call latency including retries
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oanda_request_latency_seconds",
			Help:    "Logical call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// RateLimitWait tracks time spent waiting for a token
	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oanda_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// RateLimitTokens tracks tokens left in the bucket
	RateLimitTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oanda_ratelimit_tokens",
			Help: "Tokens currently available in the rate limiter",
		},
	)

	// CandlesStored tracks candles upserted by the syncer
	CandlesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oanda_candles_stored_total",
			Help: "Total number of complete candles stored",
		},
		[]string{"instrument", "granularity"},
	)

	// CacheLookups tracks candle cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oanda_candle_cache_lookups_total",
			Help: "Candle cache lookups by result",
		},
		[]string{"result"},
	)

	// LastSyncTimestamp is the unix time of the last finished sync round
	LastSyncTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oanda_last_sync_timestamp_seconds",
			Help: "Unix time of the last completed candle sync",
		},
	)
)
