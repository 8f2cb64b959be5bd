package backoff

import (
	"context"
	"math"
	"time"
)

// Policy maps a 0-based attempt count to a delay: Base multiplied by
// Factor^attempt, hard-capped at Cap. Never unbounded, no jitter.
type Policy struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
}

// Delay returns the backoff delay for the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 2.0
	}
	d := float64(p.Base) * math.Pow(factor, float64(attempt))
	if p.Cap > 0 && d > float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
// Returns the context error on cancellation, which bounds cancellation
// latency to at most one backoff interval.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
