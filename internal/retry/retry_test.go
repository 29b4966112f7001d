package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelay_ExponentialWithCap(t *testing.T) {
	p := NewPolicy(5, time.Second, 10*time.Second)

	assert.Equal(t, 1*time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))
	assert.Equal(t, 10*time.Second, p.Delay(5))
	assert.Equal(t, 10*time.Second, p.Delay(20))
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, 5*time.Millisecond)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, 5*time.Millisecond)

	boom := errors.New("boom")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	p := NewPolicy(5, time.Millisecond, 5*time.Millisecond)
	p.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := NewPolicy(3, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}
