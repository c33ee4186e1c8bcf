// Package retry runs an operation a bounded number of times with fixed
// delays, the shape shared by SSID polling and the post-registration
// power-off loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
)

var ErrExhausted = errors.New("retry budget exhausted")

// ExhaustedError carries the last failure once every attempt was spent.
type ExhaustedError struct {
	Attempts uint
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Policy bounds an operation to Attempts calls. Lead is waited before the
// first call and Delay between two calls; no wait follows the last call.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	Lead     time.Duration
}

// MaxDuration is the longest time spent waiting, excluding call latency.
func (p Policy) MaxDuration() time.Duration {
	if p.Attempts == 0 {
		return p.Lead
	}
	return p.Lead + time.Duration(p.Attempts-1)*p.Delay
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent stops the retries and makes Do return err unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, the policy is
// exhausted or ctx is done. Exhaustion yields an *ExhaustedError matching
// ErrExhausted.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	log := logr.FromContextOrDiscard(ctx)

	if p.Attempts == 0 {
		return zero, &ExhaustedError{Attempts: 0, Last: errors.New("no attempt allowed")}
	}

	if p.Lead > 0 {
		timer := time.NewTimer(p.Lead)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	var attempts uint
	var last error
	var permanent bool
	operation := func() (T, error) {
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		attempts++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		last = err
		var pe *permanentError
		if errors.As(err, &pe) {
			permanent = true
			last = pe.err
			return zero, backoff.Permanent(pe.err)
		}
		log.V(1).Info("Attempt failed", "attempt", attempts, "of", p.Attempts, "error", err.Error())
		return zero, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(p.Attempts),
	)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	if permanent {
		return zero, last
	}
	if last == nil {
		last = err
	}
	return zero, &ExhaustedError{Attempts: attempts, Last: last}
}
