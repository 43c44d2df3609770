package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "drop_engine/pkg/errors"
)

var fastPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 5 * time.Millisecond,
	MaxBackoff:     20 * time.Millisecond,
}

func retryable(err error) bool {
	var api *apperrors.APIError
	if errors.As(err, &api) {
		return api.StatusCode >= 500
	}
	return false
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	responses := []error{
		&apperrors.APIError{StatusCode: 500},
		&apperrors.APIError{StatusCode: 500},
		nil,
	}
	calls := 0
	var observed []Attempt

	err := Do(context.Background(), fastPolicy, retryable, func(a Attempt) {
		observed = append(observed, a)
	}, func() error {
		err := responses[calls]
		calls++
		return err
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(observed) != 3 {
		t.Fatalf("expected observer called per attempt, got %d", len(observed))
	}
	// First attempt has no backoff; later delays double from the initial.
	if observed[0].Delay != 0 {
		t.Errorf("first attempt should have zero delay, got %v", observed[0].Delay)
	}
	if observed[1].Delay != 5*time.Millisecond {
		t.Errorf("second attempt delay = %v, want 5ms", observed[1].Delay)
	}
	if observed[2].Delay != 10*time.Millisecond {
		t.Errorf("third attempt delay = %v, want 10ms", observed[2].Delay)
	}
	if observed[2].Err != nil {
		t.Errorf("final attempt should be recorded as success, got %v", observed[2].Err)
	}
	if observed[0].Index != 1 || observed[2].Index != 3 {
		t.Errorf("attempt indexes should be 1-based, got %d..%d", observed[0].Index, observed[2].Index)
	}
}

func TestDo_FatalFailureShortCircuits(t *testing.T) {
	calls := 0
	fatal := &apperrors.APIError{StatusCode: 400}

	err := Do(context.Background(), fastPolicy, retryable, nil, func() error {
		calls++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("expected the fatal error unwrapped, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fatal failure must not be retried, got %d attempts", calls)
	}
	var re *apperrors.RetriesExhaustedError
	if errors.As(err, &re) {
		t.Error("fatal failure must not be reported as exhaustion")
	}
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	calls := 0
	last := &apperrors.APIError{StatusCode: 503}

	err := Do(context.Background(), fastPolicy, retryable, nil, func() error {
		calls++
		return last
	})

	if calls != 3 {
		t.Fatalf("expected the full budget of 3 attempts, got %d", calls)
	}
	var re *apperrors.RetriesExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetriesExhaustedError, got %v", err)
	}
	if re.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", re.Attempts)
	}
	if !errors.Is(err, last) {
		t.Error("exhaustion must wrap the final underlying error")
	}
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, policy, retryable, nil, func() error {
			return &apperrors.APIError{StatusCode: 500}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, apperrors.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry loop did not unwind on cancellation")
	}
}

func TestDo_BackoffCappedAtMax(t *testing.T) {
	policy := Policy{
		MaxAttempts:    4,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     8 * time.Millisecond,
	}
	var delays []time.Duration

	_ = Do(context.Background(), policy, retryable, func(a Attempt) {
		delays = append(delays, a.Delay)
	}, func() error {
		return &apperrors.APIError{StatusCode: 502}
	})

	want := []time.Duration{0, 5 * time.Millisecond, 8 * time.Millisecond, 8 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("attempt %d delay = %v, want %v", i+1, delays[i], want[i])
		}
	}
}

func TestDo_ZeroPolicyUsesDefaults(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, retryable, nil, func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("expected one successful attempt, got calls=%d err=%v", calls, err)
	}
}
