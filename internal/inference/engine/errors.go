package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorKind is the closed set of failure classes the executor reasons about.
type ErrorKind string

const (
	KindRateLimit          ErrorKind = "rate_limit"
	KindConnection         ErrorKind = "connection"
	KindTimeout            ErrorKind = "timeout"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindOverloaded         ErrorKind = "overloaded"
	KindBadRequest         ErrorKind = "bad_request"
	KindAuthentication     ErrorKind = "authentication"
	KindCanceled           ErrorKind = "canceled"
	KindUnknown            ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindConnection, KindTimeout, KindServiceUnavailable, KindOverloaded:
		return true
	default:
		return false
	}
}

type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	// Body is a truncated provider response body, kept for logs only.
	Body string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "engine error"
	}
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status=%d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return e != nil && e.Kind.Retryable() }

// KindOf classifies any error. Untyped errors are inspected for context and
// network failures before falling back to KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return KindConnection
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}
	return KindUnknown
}

func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// KindForStatus maps an HTTP status from any provider onto the taxonomy.
// 529 is Anthropic's "overloaded" status.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusServiceUnavailable:
		return KindServiceUnavailable
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthentication
	case status >= 500:
		return KindOverloaded
	case status >= 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}

const maxErrorBody = 2048

func FromHTTPStatus(provider string, status int, body string) *Error {
	body = strings.TrimSpace(body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &Error{Kind: KindForStatus(status), Provider: provider, StatusCode: status, Body: body}
}

// Wrap tags a transport-level error with its kind. Already typed errors pass through.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return &Error{Kind: KindOf(err), Provider: provider, Err: err}
}
