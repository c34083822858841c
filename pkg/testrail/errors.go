package testrail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/sony/gobreaker"
)

// UpstreamError describes a failed call against the remote API after the
// retry budget (if any) was exhausted.
type UpstreamError struct {
	Op         string // logical call kind, e.g. "get_tests"
	Endpoint   string
	StatusCode int  // last HTTP status, 0 for transport-level failures
	Transient  bool // whether the failure class was retryable
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: upstream returned %d: %v", e.Op, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// transientStatus reports whether an HTTP status code is retryable:
// 429 (rate limited) and all 5xx. Other 4xx codes fail immediately.
func transientStatus(code int) bool {
	return code == 429 || code >= 500
}

// transientErr reports whether a transport-level error is retryable:
// timeouts, connection resets, refused connections, and an open circuit
// breaker (which recovers on its own timeout).
func transientErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
