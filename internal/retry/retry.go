package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults carried by the download policy.
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 1500 * time.Millisecond
)

// Policy retries every failure up to MaxAttempts, sleeping BaseBackoff*attempt between
// attempts. There is no jitter and no permanent error class.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	// Notify is called before each backoff sleep with the attempt that just failed.
	Notify func(attempt int, err error, wait time.Duration)
	// Timer overrides the backoff timer; nil uses wall-clock timers.
	Timer backoff.Timer
}

// Linear is a backoff.BackOff returning Base, 2*Base, 3*Base, ...
type Linear struct {
	Base time.Duration
	n    int64
}

// NextBackOff implements backoff.BackOff.
func (l *Linear) NextBackOff() time.Duration {
	l.n++
	return l.Base * time.Duration(l.n)
}

// Reset implements backoff.BackOff.
func (l *Linear) Reset() { l.n = 0 }

// Do runs op until it succeeds or the policy is exhausted. It returns the value of the
// successful attempt, the number of attempts made, and the last error. A panic in op is
// recovered and counted as a failed attempt.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	base := p.BaseBackoff
	if base < 0 {
		base = 0
	}

	var (
		value    T
		attempts int
	)
	operation := func() error {
		attempts++
		v, err := call(ctx, attempts, op)
		if err != nil {
			return err
		}
		value = v
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if p.Notify != nil {
			p.Notify(attempts, err, wait)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&Linear{Base: base}, uint64(maxAttempts-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, p.Timer); err != nil {
		var zero T
		return zero, attempts, err
	}
	return value, attempts, nil
}

func call[T any](ctx context.Context, attempt int, op func(ctx context.Context, attempt int) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx, attempt)
}
