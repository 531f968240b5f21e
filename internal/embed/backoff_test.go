package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/domain"
)

func TestBackoff_DelayGrowsAndCaps(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2.0}

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	assert.Equal(t, time.Second, b.Delay(5))
	assert.Equal(t, time.Second, b.Delay(50))
}

func TestBackoff_JitterStaysBounded(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2.0, Jitter: 0.25}
	for i := 0; i < 200; i++ {
		d := b.Delay(3)
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.LessOrEqual(t, d, 500*time.Millisecond)
	}
}

func TestRetryPolicy_HonorsRetryAfterHint(t *testing.T) {
	hint := 5 * time.Millisecond
	attempts := 0
	var observed []time.Duration

	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     Backoff{Base: time.Minute, Max: time.Minute, Factor: 2.0},
		AttemptObserver: func(attempt int, delay time.Duration) {
			observed = append(observed, delay)
		},
	}
	err := policy.Run(context.Background(), nil, "test op", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return domain.TransientWithRetryAfter(errors.New("throttled"), hint)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.Len(t, observed, 1)
	assert.Equal(t, hint, observed[0], "the server hint overrides the schedule")
}

func TestRetryPolicy_StopsOnNonTransient(t *testing.T) {
	attempts := 0
	fatal := errors.New("bad request")

	policy := RetryPolicy{MaxAttempts: 5, Backoff: Backoff{Base: time.Millisecond, Max: time.Millisecond, Factor: 1}}
	err := policy.Run(context.Background(), nil, "test op", func(ctx context.Context) error {
		attempts++
		return fatal
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_ExhaustionWrapsLastError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: Backoff{Base: time.Millisecond, Max: time.Millisecond, Factor: 1}}
	attempts := 0
	err := policy.Run(context.Background(), nil, "test op", func(ctx context.Context) error {
		attempts++
		return domain.Transient(errors.New("flaky"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeTransient, de.Code)
}

func TestRetryPolicy_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, Backoff: Backoff{Base: time.Minute, Max: time.Minute, Factor: 1}}

	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- policy.Run(ctx, nil, "test op", func(ctx context.Context) error {
			attempts++
			return domain.Transient(errors.New("flaky"))
		})
	}()
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
	assert.LessOrEqual(t, attempts, 2)
}
