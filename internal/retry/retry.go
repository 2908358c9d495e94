// ABOUTME: Bounded retry execution with fixed or exponential delay schedules.
// ABOUTME: Distinguishes transient errors (retried) from terminal ones (not).

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Permanent marks an error as not worth retrying. Wrap an error in Permanent
// when the failure is definitive (record absent, invalid input) rather than
// transient (timeout, collaborator unreachable).
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Terminal wraps err so Do stops retrying immediately.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// IsTerminal reports whether err carries a Permanent marker.
func IsTerminal(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}

// Schedule yields the delay before the next attempt. attempt is zero-based:
// the delay returned for attempt n is slept after attempt n fails.
type Schedule func(attempt int) time.Duration

// Fixed returns a schedule with the same delay between every attempt.
func Fixed(delay time.Duration) Schedule {
	return func(int) time.Duration { return delay }
}

// Exponential returns a schedule of initial * 2^attempt.
func Exponential(initial time.Duration) Schedule {
	return func(attempt int) time.Duration {
		return initial << uint(attempt)
	}
}

// Policy bounds retried execution: at most MaxAttempts calls, sleeping
// according to Delay between attempts (never after the last).
type Policy struct {
	MaxAttempts int
	Delay       Schedule
}

// Do runs fn up to p.MaxAttempts times. It returns nil on the first success.
// Terminal errors and context cancellation abort immediately; any other error
// counts as a failed attempt. The inter-attempt sleep is a scheduled
// suspension selected against ctx.Done(), not a busy wait.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", p.MaxAttempts)
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsTerminal(err) {
			return err
		}
		lastErr = err

		if attempt < p.MaxAttempts-1 {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
