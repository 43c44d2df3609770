// Package engine ties the monitor, scheduler, and order pipeline into one
// drop execution loop.
package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"drop_engine/internal/config"
	"drop_engine/internal/core"
	"drop_engine/internal/monitor"
	"drop_engine/internal/pipeline"
	"drop_engine/internal/scheduler"
	apperrors "drop_engine/pkg/errors"
	"drop_engine/pkg/liveserver"
	"drop_engine/pkg/telemetry"
)

// Broadcaster publishes drop progress to the status feed. May be nil.
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// ConfirmFunc decides whether a detected window should be executed.
// Returning false skips the window and resumes monitoring. The engine
// calls it before the scheduler arms, so slow answers eat into the lead
// time at the caller's risk.
type ConfirmFunc func(seller string, window *core.SellWindow) bool

// Options wires an Engine.
type Options struct {
	Config      *config.Config
	Storefronts map[string]core.IStorefront // keyed by seller slug
	Receipts    core.IReceiptStore
	Feed        Broadcaster
	Confirm     ConfirmFunc
	Logger      core.ILogger
}

// Engine watches every configured seller and executes the order pipeline
// when the ordering seller's window goes live. Windows from other watched
// sellers are surfaced on the feed but never ordered from.
type Engine struct {
	cfg         *config.Config
	storefronts map[string]core.IStorefront
	receipts    core.IReceiptStore
	feed        Broadcaster
	confirm     ConfirmFunc
	logger      core.ILogger
}

// New creates an Engine from options. Receipts, Feed, and Confirm are
// optional.
func New(opts Options) *Engine {
	return &Engine{
		cfg:         opts.Config,
		storefronts: opts.Storefronts,
		receipts:    opts.Receipts,
		feed:        opts.Feed,
		confirm:     opts.Confirm,
		logger:      opts.Logger.WithField("component", "engine"),
	}
}

// Watch runs one watcher goroutine per configured seller until the context
// is cancelled. Pipeline failures are logged and the watcher resumes
// monitoring; only cancellation stops a watcher.
func (e *Engine) Watch(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, seller := range e.cfg.Storefront.Sellers {
		seller := seller
		sf, ok := e.storefronts[seller]
		if !ok {
			e.logger.Warn("no storefront client for seller, skipping", "seller", seller)
			continue
		}
		telemetry.GetGlobalMetrics().SetActiveWatchers(seller, 1)
		g.Go(func() error {
			defer telemetry.GetGlobalMetrics().SetActiveWatchers(seller, 0)
			return e.watchSeller(ctx, seller, sf)
		})
	}

	err := g.Wait()
	if errors.Is(err, apperrors.ErrCancelled) {
		return nil
	}
	return err
}

func (e *Engine) watchSeller(ctx context.Context, seller string, sf core.IStorefront) error {
	log := e.logger.WithField("seller", seller)
	mon := monitor.NewDropMonitor(sf, e.cfg.PollInterval(), log)

	for {
		window, err := mon.NextWindow(ctx)
		if err != nil {
			if errors.Is(err, apperrors.ErrCancelled) {
				return err
			}
			// A vendor blip must not kill the watcher; the windows it
			// exists for tend to appear right after load spikes.
			log.Warn("listing failed, resuming monitoring", "error", err.Error())
			if err := sleepCtx(ctx, e.cfg.PollInterval()); err != nil {
				return err
			}
			continue
		}
		e.broadcast(liveserver.TypeWindowDetected, liveserver.WindowEvent{
			Seller:   seller,
			WindowID: window.ID,
			Title:    window.Title,
			GoLiveAt: window.GoLiveAt.UnixMilli(),
		})

		if seller != e.cfg.Order.Seller {
			log.Info("window detected on watched seller, not ordering",
				"window", window.ID)
			continue
		}

		if err := e.RunDrop(ctx, seller, sf, window); err != nil {
			if errors.Is(err, apperrors.ErrCancelled) {
				return err
			}
			log.Error("drop failed, resuming monitoring", "window", window.ID, "error", err.Error())
		}
	}
}

// RunDrop executes one detected window end to end: confirm, arm, fire the
// pipeline, persist the receipt. Returns the pipeline failure on error.
func (e *Engine) RunDrop(ctx context.Context, seller string, sf core.IStorefront, window *core.SellWindow) error {
	log := e.logger.WithField("seller", seller).WithField("window", window.ID)

	if e.confirm != nil && !e.confirm(seller, window) {
		log.Info("window declined by operator")
		return nil
	}

	e.broadcast(liveserver.TypeArmed, liveserver.WindowEvent{
		Seller:   seller,
		WindowID: window.ID,
		GoLiveAt: window.GoLiveAt.UnixMilli(),
	})

	tickerDone := make(chan struct{})
	go e.countdownTicks(ctx, seller, window, tickerDone)

	sched := scheduler.NewScheduler(log)
	err := sched.BlockUntil(ctx, window.GoLiveAt)
	close(tickerDone)
	if err != nil {
		return err
	}

	req := e.orderRequest(window.ID)
	pipe := pipeline.New(sf, log, func(stage pipeline.Stage, cart *core.Cart) {
		event := liveserver.StageEvent{Seller: seller, Stage: string(stage)}
		if cart != nil {
			event.CartID = cart.ID
		}
		e.broadcast(liveserver.TypeStage, event)
	})

	conf, err := pipe.Run(ctx, req)
	if err != nil {
		e.broadcast(liveserver.TypeOrderFailed, liveserver.OrderEvent{
			Seller: seller,
			Status: string(core.OrderFailed),
			Error:  err.Error(),
		})
		return err
	}
	if conf == nil {
		// Dry run stops before checkout.
		return nil
	}

	log.Info("order placed",
		"order", conf.OrderID,
		"total", conf.Total.String(),
		"lines", len(conf.Lines),
	)
	e.broadcast(liveserver.TypeOrderConfirmed, liveserver.OrderEvent{
		Seller:  seller,
		OrderID: conf.OrderID,
		Status:  string(conf.Status),
		Total:   conf.Total.String(),
	})

	if e.receipts != nil {
		// The order already succeeded; losing the receipt is log-worthy
		// but must not fail the drop.
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.receipts.SaveReceipt(saveCtx, seller, conf); err != nil {
			log.Error("failed to persist receipt", "order", conf.OrderID, "error", err.Error())
		}
	}
	return nil
}

func (e *Engine) orderRequest(windowID string) pipeline.Request {
	lines := make([]core.CartLine, 0, len(e.cfg.Order.Lines))
	for _, l := range e.cfg.Order.Lines {
		options := make([]core.OptionSelection, 0, len(l.Options))
		for _, opt := range l.Options {
			options = append(options, core.OptionSelection{
				CategoryID: opt.CategoryID,
				ChoiceIDs:  append([]string{}, opt.ChoiceIDs...),
			})
		}
		lines = append(lines, core.CartLine{
			ItemID:   l.ItemID,
			Quantity: l.Quantity,
			Options:  options,
		})
	}

	return pipeline.Request{
		WindowID:     windowID,
		Fulfillment:  core.FulfillmentMode(e.cfg.Order.Fulfillment),
		Lines:        lines,
		TimeWindowID: e.cfg.Order.TimeWindowID,
		Customer: core.Customer{
			Name:  e.cfg.Customer.Name,
			Email: e.cfg.Customer.Email,
			Phone: e.cfg.Customer.Phone,
		},
		Payment: core.Payment{Token: e.cfg.Payment.Token.Reveal()},
		DryRun:  e.cfg.Order.DryRun,
	}
}

// countdownTicks publishes a heartbeat with the remaining lead time while
// the scheduler waits.
func (e *Engine) countdownTicks(ctx context.Context, seller string, window *core.SellWindow, done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.broadcast(liveserver.TypeHeartbeat, map[string]interface{}{
				"seller":       seller,
				"window_id":    window.ID,
				"remaining_ms": time.Until(window.GoLiveAt).Milliseconds(),
			})
		}
	}
}

func (e *Engine) broadcast(msgType string, data interface{}) {
	if e.feed != nil {
		e.feed.BroadcastMessage(msgType, data)
	}
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
