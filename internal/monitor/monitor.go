// Package monitor watches a seller storefront for newly published sell
// windows.
package monitor

import (
	"context"
	"time"

	"drop_engine/internal/core"
	apperrors "drop_engine/pkg/errors"
	"drop_engine/pkg/telemetry"
)

// DropMonitor polls a storefront and yields a window whenever the earliest
// upcoming window's identity changes from the previously emitted one. Each
// instance owns its own last-seen state, so monitors for different sellers
// coexist without interference.
type DropMonitor struct {
	storefront   core.IStorefront
	seller       string
	logger       core.ILogger
	pollInterval time.Duration

	lastSeen string
	now      func() time.Time
}

// NewDropMonitor creates a monitor for one seller.
func NewDropMonitor(storefront core.IStorefront, pollInterval time.Duration, logger core.ILogger) *DropMonitor {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &DropMonitor{
		storefront:   storefront,
		seller:       storefront.GetSeller(),
		logger:       logger.WithField("component", "drop_monitor").WithField("seller", storefront.GetSeller()),
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// NextWindow blocks until a window with a new identity is published, then
// returns it. An empty upcoming list is not an error; the monitor keeps
// polling. Returns apperrors.ErrCancelled when the context is cancelled
// during the inter-poll sleep or a poll.
func (m *DropMonitor) NextWindow(ctx context.Context) (*core.SellWindow, error) {
	for {
		window, err := m.poll(ctx)
		if err != nil {
			return nil, err
		}
		if window != nil {
			m.lastSeen = window.ID
			if metrics := telemetry.GetGlobalMetrics(); metrics.WindowsDetected != nil {
				metrics.WindowsDetected.Add(ctx, 1)
			}
			m.logger.Info("new sell window detected",
				"window", window.ID,
				"title", window.Title,
				"go_live_at", window.GoLiveAt.Format(time.RFC3339),
			)
			return window, nil
		}

		timer := time.NewTimer(m.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.ErrCancelled
		case <-timer.C:
		}
	}
}

// poll performs one listing call and returns a window only when the
// earliest future window differs from the last emitted identity.
func (m *DropMonitor) poll(ctx context.Context) (*core.SellWindow, error) {
	if ctx.Err() != nil {
		return nil, apperrors.ErrCancelled
	}

	windows, err := m.storefront.ListUpcomingWindows(ctx, m.seller)
	if err != nil {
		return nil, err
	}
	if metrics := telemetry.GetGlobalMetrics(); metrics.PollsTotal != nil {
		metrics.PollsTotal.Add(ctx, 1)
	}
	m.logger.Debug("polled upcoming windows",
		"at", m.now().Format(time.RFC3339),
		"count", len(windows),
	)

	candidate := m.earliestFuture(windows)
	if candidate == nil || candidate.ID == m.lastSeen {
		return nil, nil
	}
	return candidate, nil
}

// earliestFuture selects the window with the earliest GoLiveAt still in the
// future.
func (m *DropMonitor) earliestFuture(windows []*core.SellWindow) *core.SellWindow {
	now := m.now()
	var earliest *core.SellWindow
	for _, w := range windows {
		if !w.GoLiveAt.After(now) {
			continue
		}
		if earliest == nil || w.GoLiveAt.Before(earliest.GoLiveAt) {
			earliest = w
		}
	}
	return earliest
}
