// Package transport implements the HTTP collaborator the request executor
// drives.
//
// This package contains:
//   - Transport interface: one physical attempt against the remote API
//   - HTTPTransport: pooled net/http implementation with bearer auth
//   - Monitor: latency and throttle tracking for health reporting
//   - Error: transport-level failure that tells timeouts from connection errors
package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Request describes a single API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Timeout bounds this attempt only. Zero means the transport default.
	Timeout time.Duration
}

// Response is the raw outcome of an attempt that reached the server.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Latency time.Duration
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Transport performs one physical request.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Error is returned when no HTTP response was received.
type Error struct {
	Method  string
	URL     string
	Timeout bool
	After   time.Duration
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: timed out after %v: %v", e.Method, e.URL, e.After, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err represents an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// MaxRetryAfter caps a parsed Retry-After delay.
const MaxRetryAfter = 24 * time.Hour

// ParseRetryAfter parses a Retry-After header given either as delay seconds
// or as an HTTP date. NaN and infinite values are rejected; larger delays
// are capped at MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return 0, false
		}
		if seconds >= MaxRetryAfter.Seconds() {
			return MaxRetryAfter, true
		}
		return time.Duration(seconds * float64(time.Second)), true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return min(d, MaxRetryAfter), true
	}

	return 0, false
}
