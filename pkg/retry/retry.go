/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package retry runs an operation under a bounded, context-aware backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted matches any *ExhaustedError.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one. Values below 1 mean 1.
	MaxAttempts int
	// Schedule returns a fresh delay schedule for each Do call.
	Schedule func() backoff.BackOff
	// IsTransient decides whether an error is worth another attempt. Nil retries every error.
	IsTransient func(error) bool
	// OnRetry, if set, is called before each wait.
	OnRetry func(err error, next time.Duration)
}

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %s", ErrExhausted, e.Attempts, e.Last)
}

// Unwrap exposes the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is matches ErrExhausted.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Do calls op until it succeeds, returns a non-transient error, the attempts run out or ctx is done.
// A non-transient error is returned as is. ctx cancellation returns ctx.Err().
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	schedule := p.Schedule
	if schedule == nil {
		schedule = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	}

	var (
		attempts  int
		last      error
		permanent bool
	)

	b := backoff.WithContext(backoff.WithMaxRetries(schedule(), uint64(maxAttempts-1)), ctx)

	notify := func(err error, next time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, next)
		}
	}

	err := backoff.RetryNotify(func() error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}

		attempts++

		opErr := op(ctx)
		if opErr == nil {
			return nil
		}

		last = opErr

		if p.IsTransient != nil && !p.IsTransient(opErr) {
			permanent = true

			return backoff.Permanent(opErr)
		}

		return opErr
	}, b, notify)

	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return &ExhaustedError{Attempts: attempts, Last: last}
	}
}

// Fixed waits d between every attempt.
func Fixed(d time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.NewConstantBackOff(d)
	}
}

// Tiered waits fast between the first fastAttempts attempts and slow afterwards.
func Tiered(fastAttempts int, fast, slow time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		return &tieredBackOff{fastAttempts: fastAttempts, fast: fast, slow: slow}
	}
}

// Exponential grows the wait from initial up to max.
func Exponential(initial, max time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = max
		b.MaxElapsedTime = 0
		b.Reset()

		return b
	}
}

type tieredBackOff struct {
	fastAttempts int
	fast         time.Duration
	slow         time.Duration
	n            int
}

func (t *tieredBackOff) NextBackOff() time.Duration {
	t.n++

	if t.n <= t.fastAttempts {
		return t.fast
	}

	return t.slow
}

func (t *tieredBackOff) Reset() { t.n = 0 }
