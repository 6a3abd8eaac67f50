// Package apierr defines the closed error taxonomy surfaced to callers and the
// classifier that maps raw transport outcomes onto it.
//
// Every failed logical call yields exactly one *Error. Whether it is
// retryable is derived from its Kind by Retryable, never stored.
package apierr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindRateLimit
	KindInvalidInstrument
	KindTimeout
	KindNetwork
	KindServer
	KindAPI
	KindDecode
	KindRetriesExhausted
	KindInvalidRequest
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication_failed"
	case KindRateLimit:
		return "rate_limit_exceeded"
	case KindInvalidInstrument:
		return "invalid_instrument"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network_error"
	case KindServer:
		return "server_error"
	case KindAPI:
		return "api_error"
	case KindDecode:
		return "decode_error"
	case KindRetriesExhausted:
		return "retries_exhausted"
	case KindInvalidRequest:
		return "invalid_request"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is a classified failure of a logical call.
type Error struct {
	Kind Kind

	// Status is the HTTP status, when a response was received.
	Status int
	// Message is the server-provided or locally built description.
	Message string
	// RetryAfter is the server-suggested delay for KindRateLimit.
	RetryAfter time.Duration
	// Instrument names the offending instrument for KindInvalidInstrument.
	Instrument string
	// Timeout is the elapsed budget for KindTimeout.
	Timeout time.Duration
	// Overall marks a KindTimeout raised by the whole-call deadline rather
	// than a single attempt.
	Overall bool
	// Attempts is the number of physical attempts for KindRetriesExhausted.
	Attempts int
	// Last is the final classified failure for KindRetriesExhausted.
	Last *Error

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuthentication:
		return "authentication failed: invalid API key or account ID"
	case KindRateLimit:
		return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds())
	case KindInvalidInstrument:
		return fmt.Sprintf("invalid instrument: %s", e.Instrument)
	case KindTimeout:
		if e.Overall {
			return fmt.Sprintf("request timed out after %v (overall deadline)", e.Timeout)
		}
		return fmt.Sprintf("network timeout after %v", e.Timeout)
	case KindNetwork:
		return fmt.Sprintf("network error: %v", e.Err)
	case KindServer:
		return fmt.Sprintf("OANDA server error %d: %s", e.Status, e.Message)
	case KindAPI:
		return fmt.Sprintf("OANDA API error %d: %s", e.Status, e.Message)
	case KindDecode:
		return fmt.Sprintf("failed to parse response: %v", e.Err)
	case KindRetriesExhausted:
		return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
	case KindInvalidRequest:
		return fmt.Sprintf("invalid request: %s", e.Message)
	case KindCanceled:
		return fmt.Sprintf("request canceled: %v", e.Err)
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "unknown error"
	}
}

func (e *Error) Unwrap() error {
	if e.Kind == KindRetriesExhausted && e.Last != nil {
		return e.Last
	}
	return e.Err
}

// Retryable reports whether re-attempting the logical call can succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindNetwork, KindServer:
		return true
	case KindTimeout:
		return !e.Overall
	case KindAuthentication, KindInvalidInstrument, KindAPI, KindDecode,
		KindRetriesExhausted, KindInvalidRequest, KindCanceled, KindUnknown:
		return false
	}
	return false
}

// ClientError reports failures caused by the caller's credentials or input.
// These are never retried regardless of the attempt count.
func (e *Error) ClientError() bool {
	switch e.Kind {
	case KindAuthentication, KindInvalidInstrument, KindInvalidRequest:
		return true
	case KindAPI:
		return e.Status >= 400 && e.Status < 500
	}
	return false
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (e *Error) RetryAfterSeconds() int64 {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int64((e.RetryAfter + time.Second - 1) / time.Second)
}

// Constructors

func Authentication(status int) *Error {
	return &Error{Kind: KindAuthentication, Status: status}
}

func RateLimit(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Status: 429, RetryAfter: retryAfter}
}

func InvalidInstrument(name string) *Error {
	return &Error{Kind: KindInvalidInstrument, Status: 400, Instrument: name}
}

func Timeout(after time.Duration, overall bool, cause error) *Error {
	return &Error{Kind: KindTimeout, Timeout: after, Overall: overall, Err: cause}
}

func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Err: cause}
}

func Server(status int, message string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: message}
}

func API(status int, message string) *Error {
	return &Error{Kind: KindAPI, Status: status, Message: message}
}

func Decode(cause error) *Error {
	return &Error{Kind: KindDecode, Err: cause}
}

func RetriesExhausted(last *Error, attempts int) *Error {
	return &Error{Kind: KindRetriesExhausted, Last: last, Attempts: attempts}
}

func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func Canceled(cause error) *Error {
	return &Error{Kind: KindCanceled, Err: cause}
}

// As extracts the outermost *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the outermost *Error in err, or KindUnknown.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable()
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuthentication
}
