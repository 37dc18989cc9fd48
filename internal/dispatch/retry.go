package dispatch

import (
	"context"
	"time"
)

// Policy is an exponential backoff schedule
type Policy struct {
	Attempts   int
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultPolicy makes 3 attempts, waiting 1s then 2s, never more than 4s
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Initial: time.Second, Multiplier: 2, Max: 4 * time.Second}
}

// Backoff is the wait after the given 1-based attempt
func (p Policy) Backoff(attempt int) time.Duration {
	wait := p.Initial
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * p.Multiplier)
		if p.Max > 0 && wait >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && wait > p.Max {
		return p.Max
	}
	return wait
}

// Retry runs op until it succeeds or the policy is spent and returns the last error
func Retry(ctx context.Context, policy Policy, op func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(policy.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
