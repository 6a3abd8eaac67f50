package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status represents the observed health of the remote API.
type Status int

const (
	StatusHealthy   Status = iota // API is answering normally
	StatusDegraded                // API is slow but working
	StatusThrottled               // API is rate limiting us
	StatusBlocked                 // API is refusing our credentials or address
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for _, st := range []Status{StatusHealthy, StatusDegraded, StatusThrottled, StatusBlocked} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// MonitorStats holds monitoring statistics.
type MonitorStats struct {
	Status           Status        `json:"status"`
	AverageLatency   time.Duration `json:"avg_latency"`
	ThrottleCount429 int           `json:"throttle_429"`
	ThrottleCount403 int           `json:"throttle_403"`
	RequestsLastHour int           `json:"requests_last_hour"`
	RetryAfter       time.Duration `json:"retry_after"`
	LastThrottleAt   time.Time     `json:"last_throttle_at"`
	TrackedRequests  int           `json:"tracked_requests"`
}

// Monitor tracks latency and throttling signals from the API.
type Monitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	status429Count     int
	status403Count     int
	lastThrottleTime   time.Time
	retryAfterDuration time.Duration

	requestTimestamps []time.Time
	windowDuration    time.Duration

	slowResponseThreshold time.Duration
	throttleThreshold     int
	blockDuration         time.Duration

	now func() time.Time
}

// NewMonitor creates a monitor with default thresholds.
func NewMonitor() *Monitor {
	return &Monitor{
		recentLatencies:       make([]time.Duration, 0, 100),
		maxLatencyWindow:      100,
		requestTimestamps:     make([]time.Time, 0),
		windowDuration:        time.Hour,
		slowResponseThreshold: 3 * time.Second,
		throttleThreshold:     1,
		blockDuration:         10 * time.Minute,
		now:                   time.Now,
	}
}

// RecordRequest records a successful request with its latency.
func (m *Monitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}

	m.requestTimestamps = append(m.requestTimestamps, now)

	cutoff := now.Add(-m.windowDuration)
	i := 0
	for i < len(m.requestTimestamps) && !m.requestTimestamps[i].After(cutoff) {
		i++
	}
	m.requestTimestamps = m.requestTimestamps[i:]
}

// RecordThrottle records a 429 or 403 response. For 429 the server's
// Retry-After (if any) defines how long the API is considered throttled.
func (m *Monitor) RecordThrottle(statusCode int, retryAfter time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastThrottleTime = m.now()

	switch statusCode {
	case http.StatusTooManyRequests:
		m.status429Count++
		if retryAfter <= 0 {
			retryAfter = 60 * time.Second
		}
		m.retryAfterDuration = retryAfter
	case http.StatusForbidden:
		m.status403Count++
		m.retryAfterDuration = m.blockDuration
	}
}

// Status returns the current status of the API as seen by this client.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() Status {
	sinceThrottle := m.now().Sub(m.lastThrottleTime)

	if m.status403Count > 0 && sinceThrottle < m.retryAfterDuration {
		return StatusBlocked
	}

	if m.status429Count >= m.throttleThreshold && sinceThrottle < m.retryAfterDuration {
		return StatusThrottled
	}

	if len(m.recentLatencies) > 10 && m.averageLocked() > m.slowResponseThreshold {
		return StatusDegraded
	}

	return StatusHealthy
}

// RetryAfter returns the remaining time before the API should be retried.
func (m *Monitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retryAfterLocked()
}

func (m *Monitor) retryAfterLocked() time.Duration {
	if m.retryAfterDuration <= 0 {
		return 0
	}
	remaining := m.retryAfterDuration - m.now().Sub(m.lastThrottleTime)
	if remaining > 0 {
		return remaining
	}
	return 0
}

// AverageLatency returns the average latency of recent requests.
func (m *Monitor) AverageLatency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.averageLocked()
}

func (m *Monitor) averageLocked() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}

	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// GetStats returns current monitoring statistics.
func (m *Monitor) GetStats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStats{
		Status:           m.statusLocked(),
		AverageLatency:   m.averageLocked(),
		ThrottleCount429: m.status429Count,
		ThrottleCount403: m.status403Count,
		RequestsLastHour: len(m.requestTimestamps),
		RetryAfter:       m.retryAfterLocked(),
		LastThrottleAt:   m.lastThrottleTime,
		TrackedRequests:  len(m.recentLatencies),
	}
}
