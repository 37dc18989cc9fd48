package polling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/external"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(attempt int) (*external.PaymentStatus, error)

type scriptedChecker struct {
	calls int32
	fn    checkerFunc
}

func (c *scriptedChecker) GetSessionStatus(ctx context.Context, sessionID string) (*external.PaymentStatus, error) {
	n := atomic.AddInt32(&c.calls, 1)
	return c.fn(int(n))
}

func status(s string) *external.PaymentStatus {
	return &external.PaymentStatus{PaymentStatus: s, TransactionID: "tx"}
}

func TestPollCompletesOnSecondAttempt(t *testing.T) {
	checker := &scriptedChecker{fn: func(attempt int) (*external.PaymentStatus, error) {
		if attempt == 2 {
			return status("COMPLETED"), nil
		}
		return status("PENDING"), nil
	}}
	poller := NewPoller(checker, Config{MaxAttempts: 5, Interval: time.Millisecond, Timeout: time.Second})

	result, err := poller.Poll(context.Background(), "cs_1")

	require.NoError(t, err)
	assert.True(t, result.IsCompleted())
	assert.Equal(t, int32(2), checker.calls)
}

func TestPollReturnsFailedImmediately(t *testing.T) {
	checker := &scriptedChecker{fn: func(int) (*external.PaymentStatus, error) {
		return status("failed"), nil
	}}
	poller := NewPoller(checker, Config{MaxAttempts: 5, Interval: time.Millisecond, Timeout: time.Second})

	result, err := poller.Poll(context.Background(), "cs_1")

	require.NoError(t, err)
	assert.True(t, result.IsFailed())
	assert.Equal(t, int32(1), checker.calls)
}

func TestPollToleratesTransientErrors(t *testing.T) {
	checker := &scriptedChecker{fn: func(attempt int) (*external.PaymentStatus, error) {
		if attempt < 3 {
			return nil, errors.New("connection refused")
		}
		return status("COMPLETED"), nil
	}}
	poller := NewPoller(checker, Config{MaxAttempts: 3, Interval: time.Millisecond, Timeout: time.Second})

	result, err := poller.Poll(context.Background(), "cs_1")

	require.NoError(t, err)
	assert.True(t, result.IsCompleted())
}

func TestPollErrorOnFinalAttemptIsReturned(t *testing.T) {
	cause := errors.New("connection refused")
	checker := &scriptedChecker{fn: func(int) (*external.PaymentStatus, error) {
		return nil, cause
	}}
	poller := NewPoller(checker, Config{MaxAttempts: 2, Interval: time.Millisecond, Timeout: time.Second})

	_, err := poller.Poll(context.Background(), "cs_1")

	assert.True(t, errors.Is(err, cause))
	var timeout *apperrors.PollingTimeoutError
	assert.False(t, errors.As(err, &timeout))
}

func TestPollAttemptsExhausted(t *testing.T) {
	checker := &scriptedChecker{fn: func(int) (*external.PaymentStatus, error) {
		return status("PENDING"), nil
	}}
	poller := NewPoller(checker, Config{MaxAttempts: 3, Interval: time.Millisecond, Timeout: time.Minute})

	_, err := poller.Poll(context.Background(), "cs_1")

	var timeout *apperrors.PollingTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, int32(3), checker.calls)
}

func TestPollBoundedByWallClock(t *testing.T) {
	checker := &scriptedChecker{fn: func(int) (*external.PaymentStatus, error) {
		return status("PENDING"), nil
	}}
	cfg := Config{MaxAttempts: 1000, Interval: 20 * time.Millisecond, Timeout: 100 * time.Millisecond}
	poller := NewPoller(checker, cfg)

	start := time.Now()
	_, err := poller.Poll(context.Background(), "cs_1")
	elapsed := time.Since(start)

	var timeout *apperrors.PollingTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Less(t, elapsed, cfg.Timeout+cfg.Interval+100*time.Millisecond)
	assert.Less(t, int(checker.calls), 1000)
}

func TestPollStopsOnContextCancel(t *testing.T) {
	checker := &scriptedChecker{fn: func(int) (*external.PaymentStatus, error) {
		return status("PENDING"), nil
	}}
	poller := NewPoller(checker, Config{MaxAttempts: 5, Interval: time.Hour, Timeout: 2 * time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := poller.Poll(ctx, "cs_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
