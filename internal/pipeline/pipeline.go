// Package pipeline drives the four-stage order state machine against a
// storefront once a drop goes live.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"drop_engine/internal/core"
	apperrors "drop_engine/pkg/errors"
	"drop_engine/pkg/telemetry"
)

// Stage identifies one transition of the order state machine.
type Stage string

const (
	StageCart       Stage = "cart"
	StageItems      Stage = "items"
	StageTimeWindow Stage = "time_window"
	StageConfirm    Stage = "checkout"
)

// Failure is the terminal error of a pipeline run. It names the stage
// whose transition failed and wraps the underlying cause.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline failed at stage %s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Request carries everything one run needs. Lines and TimeWindowID come
// from the order configuration; the window id from the monitor.
type Request struct {
	WindowID     string
	Fulfillment  core.FulfillmentMode
	Lines        []core.CartLine
	TimeWindowID string
	Customer     core.Customer
	Payment      core.Payment
	DryRun       bool
}

// Observer is notified after each successful stage with the cart as it
// stands. Used by the status feed; may be nil.
type Observer func(stage Stage, cart *core.Cart)

// Pipeline executes one order attempt. Stages run strictly in sequence;
// a failed transition stops the machine with no rollback of earlier
// stages. Retry of transient failures happens inside the storefront
// operations, so each transition here sees a definitive outcome.
type Pipeline struct {
	storefront core.IStorefront
	logger     core.ILogger
	observer   Observer
}

// New creates a pipeline. observer may be nil.
func New(storefront core.IStorefront, logger core.ILogger, observer Observer) *Pipeline {
	return &Pipeline{
		storefront: storefront,
		logger:     logger.WithField("component", "pipeline"),
		observer:   observer,
	}
}

// Run executes cart creation, item add, time-window selection, and
// checkout for the given window. In dry-run mode it stops after the
// time-window stage and returns a nil confirmation. Every failure is a
// *Failure naming the stage that broke.
func (p *Pipeline) Run(ctx context.Context, req Request) (*core.OrderConfirmation, error) {
	started := time.Now()

	if len(req.Lines) == 0 {
		return nil, &Failure{Stage: StageItems, Err: apperrors.NewValidationError("addLines", "order has no lines", 0)}
	}
	if req.TimeWindowID == "" {
		return nil, &Failure{Stage: StageTimeWindow, Err: apperrors.NewValidationError("selectTimeWindow", "no time window configured", 0)}
	}

	var cart *core.Cart
	err := p.stage(ctx, StageCart, func() error {
		var err error
		cart, err = p.storefront.CreateCart(ctx, req.WindowID, req.Fulfillment)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.notify(StageCart, cart)

	err = p.stage(ctx, StageItems, func() error {
		var err error
		cart, err = p.storefront.AddLines(ctx, cart.ID, req.Lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.notify(StageItems, cart)

	err = p.stage(ctx, StageTimeWindow, func() error {
		var err error
		cart, err = p.storefront.SelectTimeWindow(ctx, cart.ID, req.TimeWindowID)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.notify(StageTimeWindow, cart)

	if req.DryRun {
		p.logger.Info("dry run complete, skipping checkout",
			"cart", cart.ID,
			"lines", len(cart.Lines),
			"elapsed", time.Since(started).String(),
		)
		return nil, nil
	}

	// Checkout preconditions are checked here rather than spent on a
	// remote call guaranteed to fail.
	if len(cart.Lines) == 0 {
		return nil, &Failure{Stage: StageConfirm, Err: apperrors.NewValidationError("checkout", "cart has no lines", 0)}
	}
	if cart.TimeWindow == nil {
		return nil, &Failure{Stage: StageConfirm, Err: apperrors.NewValidationError("checkout", "cart has no time window", 0)}
	}

	var conf *core.OrderConfirmation
	err = p.stage(ctx, StageConfirm, func() error {
		var err error
		conf, err = p.storefront.Checkout(ctx, cart.ID, req.Customer, req.Payment)
		return err
	})
	if err != nil {
		if m := telemetry.GetGlobalMetrics(); m.OrdersFailed != nil {
			m.OrdersFailed.Add(ctx, 1)
		}
		return nil, err
	}

	if m := telemetry.GetGlobalMetrics(); m.OrdersConfirmed != nil {
		m.OrdersConfirmed.Add(ctx, 1)
	}
	p.logger.Info("order confirmed",
		"order", conf.OrderID,
		"status", string(conf.Status),
		"total", conf.Total.String(),
		"elapsed", time.Since(started).String(),
	)
	return conf, nil
}

// stage runs one transition, records its latency, and wraps any error
// with the stage name.
func (p *Pipeline) stage(ctx context.Context, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsedMS := float64(time.Since(start).Microseconds()) / 1000.0

	if m := telemetry.GetGlobalMetrics(); m.StageLatency != nil {
		m.StageLatency.Record(ctx, elapsedMS,
			metric.WithAttributes(attribute.String("stage", string(stage))))
	}

	if err != nil {
		p.logger.Error("stage failed",
			"stage", string(stage),
			"elapsed_ms", elapsedMS,
			"error", err.Error(),
		)
		return &Failure{Stage: stage, Err: err}
	}
	p.logger.Debug("stage complete", "stage", string(stage), "elapsed_ms", elapsedMS)
	return nil
}

func (p *Pipeline) notify(stage Stage, cart *core.Cart) {
	if p.observer != nil {
		p.observer(stage, cart)
	}
}
