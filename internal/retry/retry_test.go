package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestBackoff(t *testing.T) {
	p := Policy{BaseDelay: 250 * time.Millisecond}
	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 250*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 500*time.Millisecond, p.Backoff(2))
	assert.Equal(t, time.Second, p.Backoff(3))
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Retries: 2, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Retries: 2, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryable(t *testing.T) {
	calls := 0
	p := Policy{
		Retries:   2,
		BaseDelay: time.Millisecond,
		Retryable: func(err error) bool { return !errors.Is(err, errFlaky) },
	}
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDo_PerCallTimeoutIsRetried(t *testing.T) {
	calls := 0
	p := Policy{Retries: 1, BaseDelay: time.Millisecond, PerCallTimeout: 10 * time.Millisecond}
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.True(t, IsTimeout(err))
	assert.Equal(t, 2, calls)
}

func TestDo_ParentCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Retries: 5, BaseDelay: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return errFlaky
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_DoneContextSkipsCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{Retries: 2}, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
