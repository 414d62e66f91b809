// Package retry implements the resilience policy for flaky upstream calls:
// a fixed attempt budget with linear backoff, and sequential first-success
// failover across candidates.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmpty marks a structurally valid response that carried nothing usable.
// It counts as a failed attempt.
var ErrEmpty = errors.New("empty response")

// Policy configures Do.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is multiplied by the attempt number before the next try.
	Delay time.Duration
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Log   *zap.Logger
}

// Default is three attempts with 1s, 2s backoff between them.
func Default() Policy {
	return Policy{Attempts: 3, Delay: time.Second}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error // last attempt's error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls fn until it succeeds or the budget runs out. A result for which
// empty returns true is treated like ErrEmpty. The context is checked
// between attempts and interrupts the backoff sleep.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error), empty func(T) bool) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx, attempt)
		if err == nil && empty != nil && empty(v) {
			err = ErrEmpty
		}
		if err == nil {
			return v, nil
		}
		lastErr = err
		log.Debug("attempt failed", zap.Int("attempt", attempt), zap.Int("budget", attempts), zap.Error(err))

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*p.Delay); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func timerSleep(ctx context.Context, d time.Duration) error {
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

// Attempt records one failed candidate in a failover run.
type Attempt struct {
	Target string
	Err    error
}

// FailoverError is returned when no candidate succeeded.
type FailoverError struct {
	Attempts []Attempt
}

func (e *FailoverError) Error() string {
	if len(e.Attempts) == 0 {
		return "no candidates to try"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Target, a.Err)
	}
	return fmt.Sprintf("all %d candidates failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

func (e *FailoverError) Unwrap() []error {
	out := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Err
	}
	return out
}

// Failover tries candidates in order, once each, and returns the first
// success. Nothing after the winning candidate is called.
func Failover[C, T any](ctx context.Context, candidates []C, name func(C) string, fn func(ctx context.Context, c C) (T, error)) (T, error) {
	var zero T
	ferr := &FailoverError{}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx, c)
		if err == nil {
			return v, nil
		}
		ferr.Attempts = append(ferr.Attempts, Attempt{Target: name(c), Err: err})
	}
	return zero, ferr
}
