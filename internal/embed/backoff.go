package embed

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/domain"
)

// Backoff computes exponential, jittered retry delays.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	// Jitter is the fraction of the delay randomized in each direction.
	Jitter float64
}

// DefaultBackoff provides the retry schedule used by every stage.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2.0,
		Jitter: 0.25,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if d >= float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}

// Retry runs op up to maxAttempts times, sleeping between attempts.
// Only transient errors are retried; a server-supplied retry-after hint
// overrides the computed delay. Each attempt gets its own timeout when
// one is configured. AttemptObserver, when non-nil, sees every attempt
// number and the delay chosen after it; tests use it to assert the
// schedule.
type RetryPolicy struct {
	MaxAttempts     int
	PerCallTimeout  time.Duration
	Backoff         Backoff
	AttemptObserver func(attempt int, delay time.Duration)
}

func (p RetryPolicy) Run(ctx context.Context, logger *zap.Logger, what string, op func(ctx context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.PerCallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.PerCallTimeout)
		}
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay, hinted := domain.RetryAfterHint(err)
		if !hinted {
			delay = p.Backoff.Delay(attempt)
		}
		if p.AttemptObserver != nil {
			p.AttemptObserver(attempt, delay)
		}
		logger.Warn("retrying after transient failure",
			zap.String("operation", what),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeTransient, what+" failed after retries", lastErr)
}
