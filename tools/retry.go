package tools

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// ExecuteWithRetry runs thunk up to maxAttempts times, waiting
// baseDelay * attemptNumber between attempts (linear backoff). Only
// transient failures are retried; anything else propagates immediately.
// Exhausting maxAttempts returns the last error.
//
// The thunk receives the caller's ctx unchanged; per-attempt timeouts
// belong to the wrapped call (see GraphCallTimeout).
func ExecuteWithRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, thunk func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = thunk(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

// IsTransient reports whether err is a retryable condition: connection
// reset/refused, timeout, DNS resolution failure, or an HTTP 5xx from
// the Graph API.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr GraphAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
