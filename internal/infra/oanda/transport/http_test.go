package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_SendsAuthHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "RFC3339", r.Header.Get("Accept-Datetime-Format"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		assert.Equal(t, "/v3/accounts/abc/pricing", r.URL.Path)
		assert.Equal(t, "EUR_USD", r.URL.Query().Get("instruments"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prices":[]}`))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL+"/", "secret", 5*time.Second)
	defer tr.Close()

	resp, err := tr.Send(context.Background(), Request{
		Path:  "/v3/accounts/abc/pricing",
		Query: url.Values{"instruments": {"EUR_USD"}},
	})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.JSONEq(t, `{"prices":[]}`, string(resp.Body))

	health := tr.Health()
	require.Equal(t, 1, health.Successes)
	require.Zero(t, health.Failures)
}

func TestHTTPTransport_NonSuccessIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, "k", 5*time.Second)
	resp, err := tr.Send(context.Background(), Request{Path: "/x"})
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.Status)
	require.Equal(t, "3", resp.Header.Get("Retry-After"))

	stats := tr.Monitor.GetStats()
	require.Equal(t, 1, stats.ThrottleCount429)
	require.Equal(t, StatusThrottled, stats.Status)
	require.Equal(t, 1, tr.Health().Failures)
}

func TestHTTPTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tr := NewHTTPTransport(server.URL, "k", time.Second)
	_, err := tr.Send(context.Background(), Request{Path: "/slow", Timeout: 30 * time.Millisecond})
	require.Error(t, err)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.True(t, terr.Timeout)
	require.Equal(t, 30*time.Millisecond, terr.After)
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	tr := NewHTTPTransport(addr, "k", time.Second)
	_, err := tr.Send(context.Background(), Request{Path: "/"})
	require.Error(t, err)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.False(t, terr.Timeout)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		value string
		want  time.Duration
		ok    bool
	}{
		{"3", 3 * time.Second, true},
		{" 60 ", 60 * time.Second, true},
		{"1.5", 1500 * time.Millisecond, true},
		{"", 0, false},
		{"-1", 0, false},
		{"soon", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"-Inf", 0, false},
		{"1e12", MaxRetryAfter, true},
		{"86400", MaxRetryAfter, true},
		{now.Add(48 * time.Hour).Format(http.TimeFormat), MaxRetryAfter, true},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second, true},
		{now.Add(-30 * time.Second).Format(http.TimeFormat), 0, true},
	}

	for _, tt := range tests {
		got, ok := ParseRetryAfter(tt.value, now)
		require.Equal(t, tt.ok, ok, "value %q", tt.value)
		require.Equal(t, tt.want, got, "value %q", tt.value)
	}
}
