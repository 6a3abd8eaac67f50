package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/oanda/internal/infra/oanda/apierr"
	"github.com/vietddude/oanda/internal/infra/oanda/ratelimit"
	"github.com/vietddude/oanda/internal/infra/oanda/transport"
)

// DefaultCacheTTL bounds how often the monitor calls the API.
const DefaultCacheTTL = 10 * time.Second

// DefaultCheckTimeout bounds the API call of a single check.
const DefaultCheckTimeout = 5 * time.Second

// Client is the part of the API client the monitor inspects.
type Client interface {
	HealthCheck(ctx context.Context) (bool, error)
	TransportHealth() (transport.HealthStatus, bool)
	Limiter() *ratelimit.TokenBucket
}

// SyncReporter is implemented by the candle syncer.
type SyncReporter interface {
	LastSync() (time.Time, error)
	Interval() time.Duration
}

// Monitor aggregates health status from the client and the syncer.
type Monitor struct {
	client       Client
	syncer       SyncReporter
	cacheTTL     time.Duration
	checkTimeout time.Duration
	now          func() time.Time

	mu         sync.Mutex
	checking   bool
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new health monitor. syncer may be nil.
func NewMonitor(client Client, syncer SyncReporter) *Monitor {
	return &Monitor{
		client:       client,
		syncer:       syncer,
		cacheTTL:     DefaultCacheTTL,
		checkTimeout: DefaultCheckTimeout,
		now:          time.Now,
	}
}

// CheckHealth returns the current report. Results are cached for the
// monitor's TTL so health endpoints do not spend rate limit tokens. While a check is
// running, concurrent callers get the previous report instead of waiting.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	if m.lastReport != nil && (m.checking || m.now().Sub(m.lastCheck) < m.cacheTTL) {
		report := *m.lastReport
		m.mu.Unlock()
		return report
	}
	m.checking = true
	m.mu.Unlock()

	report := m.check(ctx)

	m.mu.Lock()
	m.checking = false
	m.lastCheck = report.CheckedAt
	m.lastReport = &report
	m.mu.Unlock()
	return report
}

func (m *Monitor) check(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		CheckedAt: m.now(),
		API:       m.checkAPI(ctx),
	}
	report.Status = worst(report.Status, report.API.Status)

	if th, ok := m.client.TransportHealth(); ok {
		report.Transport = &th
		if th.Monitor != nil {
			switch th.Monitor.Status {
			case transport.StatusBlocked:
				report.Status = worst(report.Status, StatusCritical)
			case transport.StatusThrottled, transport.StatusDegraded:
				report.Status = worst(report.Status, StatusDegraded)
			}
		}
	}

	if limiter := m.client.Limiter(); limiter != nil {
		st := limiter.Stats()
		report.Limiter = LimiterHealth{
			Capacity:   st.Capacity,
			Tokens:     st.Tokens,
			RefillRate: st.RefillRate,
			Acquired:   st.Acquired,
			Waited:     st.Waited,
			TotalWait:  st.TotalWait,
		}
	}

	if m.syncer != nil {
		sh := m.checkSync()
		report.Sync = &sh
		report.Status = worst(report.Status, sh.Status)
	}
	return report
}

func (m *Monitor) checkAPI(ctx context.Context) ComponentHealth {
	if m.checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.checkTimeout)
		defer cancel()
	}

	ok, err := m.client.HealthCheck(ctx)
	switch {
	case err != nil:
		return ComponentHealth{Status: StatusDegraded, Message: err.Error()}
	case !ok:
		return ComponentHealth{Status: StatusCritical, Message: "credentials rejected"}
	default:
		return ComponentHealth{Status: StatusHealthy}
	}
}

func (m *Monitor) checkSync() SyncHealth {
	last, err := m.syncer.LastSync()
	h := SyncHealth{
		ComponentHealth: ComponentHealth{Status: StatusHealthy},
		LastSync:        last,
	}

	switch {
	case last.IsZero():
		h.Message = "waiting for first round"
	case apierr.IsAuth(err):
		h.Status = StatusCritical
		h.Message = err.Error()
	case err != nil:
		h.Status = StatusDegraded
		h.Message = err.Error()
	case m.now().Sub(last) > 3*m.syncer.Interval():
		h.Status = StatusDegraded
		h.Message = "sync is stale"
	}
	return h
}
