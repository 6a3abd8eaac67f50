package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries a per-attempt id for correlation in logs.
	RequestIDHeader = "X-Request-ID"

	datetimeFormatHeader = "Accept-Datetime-Format"
)

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	baseURL        string
	apiKey         string
	defaultTimeout time.Duration
	httpClient     *http.Client

	mu           sync.RWMutex
	totalLatency time.Duration
	successCount int
	failureCount int

	Monitor *Monitor
}

// NewHTTPTransport creates a transport for baseURL authenticating with apiKey.
func NewHTTPTransport(baseURL, apiKey string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		defaultTimeout: timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Monitor: NewMonitor(),
	}
}

// BaseURL returns the API root this transport talks to.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// Send issues req and returns the raw response. A non-2xx status is not an
// error here; classification belongs to the caller.
func (t *HTTPTransport) Send(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := t.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		t.recordFailure()
		return nil, &Error{Method: method, URL: target, Err: err}
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if httpReq.Header.Get(datetimeFormatHeader) == "" {
		httpReq.Header.Set(datetimeFormatHeader, "RFC3339")
	}
	if httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		t.recordFailure()
		return nil, &Error{
			Method:  method,
			URL:     target,
			Timeout: IsTimeout(err),
			After:   timeout,
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.recordFailure()
		return nil, &Error{
			Method:  method,
			URL:     target,
			Timeout: IsTimeout(err),
			After:   timeout,
			Err:     err,
		}
	}

	latency := time.Since(start)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter, _ := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		t.Monitor.RecordThrottle(resp.StatusCode, retryAfter)
	case http.StatusForbidden:
		t.Monitor.RecordThrottle(resp.StatusCode, 0)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		t.Monitor.RecordRequest(latency)
		t.recordSuccess(latency)
	} else {
		t.recordFailure()
	}

	return &Response{
		Status:  resp.StatusCode,
		Header:  resp.Header.Clone(),
		Body:    body,
		Latency: latency,
	}, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

// Health returns the transport's running success/failure figures.
func (t *HTTPTransport) Health() HealthStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h := HealthStatus{
		Successes: t.successCount,
		Failures:  t.failureCount,
	}
	total := t.successCount + t.failureCount
	if total > 0 {
		h.ErrorRate = float64(t.failureCount) / float64(total)
	}
	if t.successCount > 0 {
		h.Latency = t.totalLatency / time.Duration(t.successCount)
	}
	stats := t.Monitor.GetStats()
	h.Monitor = &stats
	return h
}

// HealthStatus summarises transport outcomes.
type HealthStatus struct {
	Successes int           `json:"successes"`
	Failures  int           `json:"failures"`
	ErrorRate float64       `json:"error_rate"`
	Latency   time.Duration `json:"avg_latency"`
	Monitor   *MonitorStats `json:"monitor,omitempty"`
}

func (t *HTTPTransport) recordSuccess(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.successCount++
	t.totalLatency += latency
}

func (t *HTTPTransport) recordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failureCount++
}
