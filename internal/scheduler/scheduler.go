// Package scheduler provides precise blocking until a target instant.
package scheduler

import (
	"context"
	"time"

	"drop_engine/internal/core"
	apperrors "drop_engine/pkg/errors"
	"drop_engine/pkg/telemetry"
)

// spinLead is how far ahead of the target the coarse timer hands off to
// the busy-wait phase. Timer wakeups on a loaded host can overshoot by
// several milliseconds; the spin phase absorbs that.
const spinLead = 100 * time.Millisecond

// countdownTick is the interval between progress logs while waiting.
const countdownTick = 10 * time.Second

// Scheduler blocks callers until a target time with sub-millisecond
// trigger error. The clock is injectable for tests.
type Scheduler struct {
	logger core.ILogger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a scheduler using the wall clock.
func NewScheduler(logger core.ILogger) *Scheduler {
	return &Scheduler{
		logger: logger.WithField("component", "scheduler"),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// BlockUntil returns once the wall clock reaches target. A target at or
// before now returns immediately. Cancellation during the coarse wait
// returns apperrors.ErrCancelled; the fine spin phase is too short to
// observe cancellation.
func (s *Scheduler) BlockUntil(ctx context.Context, target time.Time) error {
	remaining := target.Sub(s.now())
	if remaining <= 0 {
		s.recordTriggerError(ctx, target)
		return nil
	}

	s.logger.Info("armed",
		"target", target.Format(time.RFC3339Nano),
		"remaining", remaining.String(),
	)

	// Coarse phase: timer sleeps down to the spin handoff point,
	// logging a countdown so long waits stay observable.
	for {
		remaining = target.Sub(s.now())
		if remaining <= spinLead {
			break
		}
		step := remaining - spinLead
		if step > countdownTick {
			step = countdownTick
		}
		if err := s.sleep(ctx, step); err != nil {
			return err
		}
		if left := target.Sub(s.now()); left > spinLead {
			s.logger.Info("countdown", "remaining", left.Round(time.Second).String())
		}
	}

	// Fine phase: busy-wait the last stretch for precision.
	for s.now().Before(target) {
	}

	s.recordTriggerError(ctx, target)
	return nil
}

func (s *Scheduler) recordTriggerError(ctx context.Context, target time.Time) {
	errMS := float64(s.now().Sub(target).Microseconds()) / 1000.0
	if m := telemetry.GetGlobalMetrics(); m.TriggerError != nil {
		m.TriggerError.Record(ctx, errMS)
	}
	s.logger.Info("trigger fired", "error_ms", errMS)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return apperrors.ErrCancelled
	case <-timer.C:
		return nil
	}
}
