package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	return logr.NewContext(context.Background(), testr.New(t))
}

func TestSucceedsOnLaterAttempt(t *testing.T) {
	calls := 0
	res, err := Do(testContext(t), Policy{Attempts: 5, Delay: time.Millisecond}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, 3, calls)
}

func TestExhaustsAfterAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := Do(testContext(t), Policy{Attempts: 4, Delay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 4, calls)

	var ee *ExhaustedError
	require.ErrorAs(t, err, &ee)
	require.EqualValues(t, 4, ee.Attempts)
}

func TestPermanentStopsImmediately(t *testing.T) {
	calls := 0
	conflict := errors.New("conflict")
	_, err := Do(testContext(t), Policy{Attempts: 8, Delay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(conflict)
	})
	require.ErrorIs(t, err, conflict)
	require.NotErrorIs(t, err, ErrExhausted)
	require.Equal(t, 1, calls)
}

func TestBoundedDuration(t *testing.T) {
	p := Policy{Attempts: 5, Delay: 20 * time.Millisecond}
	start := time.Now()
	_, err := Do(testContext(t), p, func(ctx context.Context) (bool, error) {
		return false, errors.New("no")
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.Less(t, time.Since(start), p.MaxDuration()+200*time.Millisecond)
	require.Equal(t, 80*time.Millisecond, p.MaxDuration())
}

func TestLeadIsWaitedFirst(t *testing.T) {
	p := Policy{Attempts: 1, Lead: 30 * time.Millisecond}
	start := time.Now()
	var first time.Duration
	_, err := Do(testContext(t), p, func(ctx context.Context) (bool, error) {
		first = time.Since(start)
		return true, nil
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, first, 30*time.Millisecond)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	calls := 0
	_, err := Do(ctx, Policy{Attempts: 100, Delay: 10 * time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, errors.New("again")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, calls, 100)
}

func TestZeroAttempts(t *testing.T) {
	calls := 0
	_, err := Do(testContext(t), Policy{}, func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.Zero(t, calls)
}
