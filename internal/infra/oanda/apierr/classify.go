package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/oanda/internal/infra/oanda/transport"
)

// DefaultRetryAfter applies to a 429 that carries no usable Retry-After.
const DefaultRetryAfter = 60 * time.Second

// Outcome is the raw result of one attempt.
type Outcome struct {
	Response *transport.Response
	Err      error

	// Instrument is the instrument the call was about, if any. It names the
	// offending input in KindInvalidInstrument errors.
	Instrument string
}

var throttlePatterns = []string{
	"rate limit exceeded",
	"too many requests",
	"request rate",
	"throttled",
}

var instrumentPatterns = []string{
	"invalid value specified for 'instrument'",
	"invalid instrument",
	"instrument not found",
	"unknown instrument",
	"instrument does not exist",
	"invalid value specified for 'instruments'",
}

// Classifier converts attempt outcomes into errors.
type Classifier struct {
	DefaultRetryAfter time.Duration
	Now               func() time.Time
}

// Classify uses a Classifier with default settings.
func Classify(o Outcome) *Error {
	return Classifier{}.Classify(o)
}

// Classify returns nil for a successful (2xx) outcome and exactly one
// classified *Error otherwise.
func (c Classifier) Classify(o Outcome) *Error {
	if o.Err != nil {
		return c.classifyTransport(o.Err)
	}

	resp := o.Response
	if resp == nil {
		return Network(errors.New("no response received"))
	}
	if resp.OK() {
		return nil
	}

	message := extractMessage(resp.Body)
	lower := strings.ToLower(message)

	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		e := Authentication(resp.Status)
		e.Message = message
		return e

	case resp.Status == http.StatusTooManyRequests:
		return c.rateLimit(resp, message)

	case resp.Status == http.StatusBadRequest && containsAny(lower, instrumentPatterns):
		name := o.Instrument
		if name == "" {
			name = message
		}
		return InvalidInstrument(name)

	// Throttling reported in the body of another 4xx.
	case resp.Status >= 400 && resp.Status < 500 && containsAny(lower, throttlePatterns):
		return c.rateLimit(resp, message)

	case resp.Status >= 500:
		if message == "" {
			message = defaultServerMessage(resp.Status)
		}
		return Server(resp.Status, message)

	case resp.Status == http.StatusNotFound:
		return API(resp.Status, "Resource not found: "+message)

	default:
		return API(resp.Status, message)
	}
}

func (c Classifier) classifyTransport(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}

	if errors.Is(err, context.Canceled) {
		return Canceled(err)
	}

	var terr *transport.Error
	if errors.As(err, &terr) {
		if terr.Timeout {
			return Timeout(terr.After, false, err)
		}
		return Network(err)
	}

	if transport.IsTimeout(err) {
		return Timeout(0, false, err)
	}

	return Network(err)
}

func (c Classifier) rateLimit(resp *transport.Response, message string) *Error {
	e := RateLimit(c.retryAfter(resp))
	e.Status = resp.Status
	e.Message = message
	return e
}

func (c Classifier) retryAfter(resp *transport.Response) time.Duration {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	if resp.Header != nil {
		if d, ok := transport.ParseRetryAfter(resp.Header.Get("Retry-After"), now()); ok {
			return d
		}
	}

	if c.DefaultRetryAfter > 0 {
		return c.DefaultRetryAfter
	}
	return DefaultRetryAfter
}

// extractMessage pulls the human-readable message out of an OANDA error
// body, falling back to the raw text.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		ErrorMessage string `json:"errorMessage"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrorMessage != "" {
			return payload.ErrorMessage
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	return strings.TrimSpace(string(body))
}

func defaultServerMessage(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "OANDA service temporarily unavailable"
	default:
		return "OANDA server error"
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
