package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteWithRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return GraphAPIError{StatusCode: 503, Body: "try later"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetryDoesNotRetryApplicationErrors(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return GraphAPIError{StatusCode: 400, Body: "bad request"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr GraphAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.StatusCode)
}

func TestExecuteWithRetryExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, syscall.ECONNRESET)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt 3")
}

func TestExecuteWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := ExecuteWithRetry(ctx, 3, time.Hour, func(ctx context.Context) error {
		calls++
		return GraphAPIError{StatusCode: 500, Body: "boom"}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("some app error")))
	assert.False(t, IsTransient(GraphAPIError{StatusCode: 404}))

	assert.True(t, IsTransient(GraphAPIError{StatusCode: 500}))
	assert.True(t, IsTransient(GraphAPIError{StatusCode: 503}))
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(&net.DNSError{Err: "no such host", Name: "graph.facebook.com"}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
}
