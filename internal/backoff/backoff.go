// Package backoff provides retry delay strategies for broker reconnects and worker polling.
// All strategies are stateless and safe for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(exponentialBase(e.Initial, attempt), e.Max)
}

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := capped(exponentialBase(e.Initial, attempt), e.Max)
	return time.Duration(rand.Float64() * float64(base)) //nolint:gosec // jitter does not need crypto rand
}

// Sleep blocks for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func exponentialBase(initial time.Duration, attempt int) float64 {
	if attempt < 1 {
		attempt = 1
	}
	return float64(initial) * math.Pow(2, float64(attempt-1))
}

func capped(d float64, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
