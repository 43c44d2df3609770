// Package retry provides bounded retry with exponential backoff for
// remote calls.
package retry

import (
	"context"
	"time"

	apperrors "drop_engine/pkg/errors"
)

// Policy defines how an operation is retried.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is the engine-wide retry budget: three total attempts with
// 500ms and 1s delays before attempts two and three.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// ClassifyFunc decides whether a failure is worth another attempt.
type ClassifyFunc func(error) bool

// Attempt describes one attempt for the observer callback.
type Attempt struct {
	Index int           // 1-based attempt number
	Delay time.Duration // backoff slept before this attempt
	Err   error         // nil on success
}

// Observer is notified after every attempt, success or failure. It is the
// retry loop's sole side effect.
type Observer func(Attempt)

// Do runs fn until it succeeds, the classifier reports a fatal failure, or
// the attempt budget is spent. A fatal failure returns immediately without
// consuming further attempts. Exhaustion returns a RetriesExhaustedError
// wrapping the last failure. Cancellation during backoff returns
// apperrors.ErrCancelled.
func Do(ctx context.Context, policy Policy, classify ClassifyFunc, observe Observer, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultPolicy.InitialBackoff
	}

	backoff := policy.InitialBackoff
	var delay time.Duration
	var err error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err = fn()
		if observe != nil {
			observe(Attempt{Index: attempt, Delay: delay, Err: err})
		}
		if err == nil {
			return nil
		}
		if !classify(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay = backoff
		select {
		case <-ctx.Done():
			return apperrors.ErrCancelled
		case <-time.After(delay):
			backoff = minDuration(backoff*2, policy.MaxBackoff)
		}
	}

	return &apperrors.RetriesExhaustedError{Attempts: policy.MaxAttempts, Err: err}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
