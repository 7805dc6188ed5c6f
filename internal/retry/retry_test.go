package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickops/fieldsync/internal/models"
)

func TestBackoffFuncs(t *testing.T) {
	tests := []struct {
		name    string
		fn      BackoffFunc
		attempt int
		base    time.Duration
		want    time.Duration
	}{
		{"linear first", Linear, 1, time.Second, time.Second},
		{"linear third", Linear, 3, time.Second, 3 * time.Second},
		{"exponential first", Exponential, 1, time.Second, time.Second},
		{"exponential second", Exponential, 2, time.Second, 2 * time.Second},
		{"exponential fourth", Exponential, 4, time.Second, 8 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.attempt, tt.base))
		})
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Base: time.Hour}, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Base: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Base: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnValidationError(t *testing.T) {
	calls := 0
	verr := &models.ValidationError{Field: "id", Reason: "must not be empty"}
	err := Do(context.Background(), Policy{MaxAttempts: 5, Base: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return verr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var got *models.ValidationError
	assert.ErrorAs(t, err, &got)
}

func TestDoStopsOnNonRetryableNetworkError(t *testing.T) {
	calls := 0
	nerr := &models.NetworkError{
		Code:      models.ErrCodeNetwork,
		Op:        "fetch",
		Retryable: false,
		Err:       errors.New("404"),
	}
	err := Do(context.Background(), Policy{MaxAttempts: 5, Base: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return nerr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, Policy{MaxAttempts: 3, Base: time.Hour}, func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoCapsDelay(t *testing.T) {
	start := time.Now()
	_ = Do(context.Background(), Policy{
		MaxAttempts: 3,
		Base:        50 * time.Millisecond,
		Backoff:     Exponential,
		MaxDelay:    time.Millisecond,
	}, func(ctx context.Context) error {
		return errors.New("transient")
	})

	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
