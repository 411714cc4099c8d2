// Package retry holds the bounded poll and backoff loops shared by the OCR
// poll, the index completion poll and source downloads.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by Poll when the budget runs out before a
// terminal state is reached.
var ErrTimeout = errors.New("poll budget exhausted")

// Policy bounds a poll loop.
type Policy struct {
	Interval    time.Duration // delay before the second check
	MaxInterval time.Duration // cap for the growing delay, 0 keeps Interval fixed
	Multiplier  float64       // growth factor applied after each check, <= 1 keeps Interval fixed
	Timeout     time.Duration // total budget, measured from the first check
}

func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	if p.Timeout <= 0 {
		p.Timeout = 5 * time.Minute
	}
	return p
}

func (p Policy) next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	d = time.Duration(float64(d) * p.Multiplier)
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks a check error as worth another poll.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}

// Poll runs check until it reports done, returns a non-transient error, or
// the policy budget is spent. The context passed to check expires with the
// budget.
func Poll[T any](ctx context.Context, p Policy, check func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	p = p.withDefaults()

	pollCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	interval := p.Interval
	var lastErr error
	for attempt := 1; ; attempt++ {
		v, done, err := check(pollCtx)
		if err == nil && done {
			return v, nil
		}
		if pollCtx.Err() != nil {
			return zero, budgetErr(ctx, p, attempt, err)
		}
		if err != nil && !IsTransient(err) {
			return zero, err
		}
		lastErr = err

		timer := time.NewTimer(interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return zero, budgetErr(ctx, p, attempt, lastErr)
		case <-timer.C:
		}
		interval = p.next(interval)
	}
}

func budgetErr(parent context.Context, p Policy, attempts int, lastErr error) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %d checks in %v, last error: %v", ErrTimeout, attempts, p.Timeout, lastErr)
	}
	return fmt.Errorf("%w: %d checks in %v", ErrTimeout, attempts, p.Timeout)
}

// Backoff bounds a retried operation.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultBackoff is 5 attempts from 1s doubling up to 32s.
var DefaultBackoff = Backoff{Attempts: 5, Initial: time.Second, Max: 32 * time.Second}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent stops Do from retrying err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs op until it succeeds, returns a Permanent error, or the attempts
// are used up. The delay doubles after each failure.
func Do(ctx context.Context, b Backoff, op func(ctx context.Context, attempt int) error) error {
	if b.Attempts < 1 {
		b.Attempts = 1
	}
	delay := b.Initial

	var lastErr error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == b.Attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", b.Attempts, lastErr)
}
