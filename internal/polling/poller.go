package polling

import (
	"context"
	"fmt"
	"time"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/external"
	"bookticket/internal/logger"
)

type Config struct {
	MaxAttempts int
	Interval    time.Duration
	Timeout     time.Duration
}

// StatusChecker reads the status of a payment session
type StatusChecker interface {
	GetSessionStatus(ctx context.Context, sessionID string) (*external.PaymentStatus, error)
}

// Poller waits for a payment session to reach COMPLETED or FAILED.
// It is bounded both by attempt count and by wall-clock time.
type Poller struct {
	checker StatusChecker
	cfg     Config
	now     func() time.Time
}

func NewPoller(checker StatusChecker, cfg Config) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Poller{checker: checker, cfg: cfg, now: time.Now}
}

// Poll returns the first terminal status. A status-check error is tolerated
// unless it happens on the last attempt.
func (p *Poller) Poll(ctx context.Context, sessionID string) (*external.PaymentStatus, error) {
	log := logger.WithContext(ctx).With("session_id", sessionID)
	start := p.now()

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		elapsed := p.now().Sub(start)
		if elapsed > p.cfg.Timeout {
			log.Warn("Payment polling timed out", "attempts", attempt-1, "elapsed", elapsed)
			return nil, &apperrors.PollingTimeoutError{SessionID: sessionID, Attempts: attempt - 1, Elapsed: elapsed}
		}

		status, err := p.checker.GetSessionStatus(ctx, sessionID)
		switch {
		case err != nil:
			if attempt == p.cfg.MaxAttempts {
				return nil, fmt.Errorf("payment status check failed on final attempt %d: %w", attempt, err)
			}
			log.Warn("Payment status check failed, will retry", "attempt", attempt, "error", err)
		case status.IsTerminal():
			log.Info("Payment reached terminal status", "attempt", attempt, "status", status.PaymentStatus)
			return status, nil
		default:
			log.Debug("Payment still pending", "attempt", attempt, "status", status.PaymentStatus)
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := sleep(ctx, p.cfg.Interval); err != nil {
			return nil, err
		}
	}

	elapsed := p.now().Sub(start)
	return nil, &apperrors.PollingTimeoutError{SessionID: sessionID, Attempts: p.cfg.MaxAttempts, Elapsed: elapsed}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
