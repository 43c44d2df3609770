package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drop_engine/internal/config"
	"drop_engine/internal/core"
	"drop_engine/internal/mock"
	"drop_engine/internal/pipeline"
	apperrors "drop_engine/pkg/errors"
	"drop_engine/pkg/liveserver"
)

type fakeReceipts struct {
	mu    sync.Mutex
	saved []*core.OrderConfirmation
}

func (f *fakeReceipts) SaveReceipt(ctx context.Context, seller string, conf *core.OrderConfirmation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, conf)
	return nil
}

func (f *fakeReceipts) ListReceipts(ctx context.Context, seller string, limit int) ([]*core.OrderConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*core.OrderConfirmation{}, f.saved...), nil
}

func (f *fakeReceipts) Close() error { return nil }

type fakeFeed struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeFeed) BroadcastMessage(msgType string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, msgType)
}

func (f *fakeFeed) seen(msgType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tp := range f.types {
		if tp == msgType {
			return true
		}
	}
	return false
}

func testConfig(sellers ...string) *config.Config {
	return &config.Config{
		Storefront: config.StorefrontConfig{
			BaseURL: "https://shop.example",
			Sellers: sellers,
		},
		Order: config.OrderConfig{
			Seller:      sellers[0],
			Fulfillment: "PICKUP",
			Lines: []config.OrderLineConfig{
				{ItemID: "croissant", Quantity: 2},
				{ItemID: "baguette", Quantity: 1},
			},
			TimeWindowID: "slot-0900",
		},
		Customer: config.CustomerConfig{Name: "Ada", Email: "ada@example.com"},
		Timing:   config.TimingConfig{PollIntervalSeconds: 1},
		Concurrency: config.ConcurrencyConfig{
			PreflightWorkers: 2,
			PreflightBuffer:  8,
		},
	}
}

func newTestEngine(cfg *config.Config, sf core.IStorefront, opts Options) (*Engine, *fakeReceipts, *fakeFeed) {
	receipts := &fakeReceipts{}
	feed := &fakeFeed{}
	opts.Config = cfg
	opts.Storefronts = map[string]core.IStorefront{sf.GetSeller(): sf}
	opts.Receipts = receipts
	opts.Feed = feed
	opts.Logger = mock.NewLogger()
	return New(opts), receipts, feed
}

func TestRunDrop_EndToEnd(t *testing.T) {
	sf := mock.NewMockStorefront("butterandcrumble")
	cfg := testConfig("butterandcrumble")
	eng, receipts, feed := newTestEngine(cfg, sf, Options{})

	goLive := time.Now().Add(time.Second)
	window := &core.SellWindow{ID: "w1", Title: "saturday bake", GoLiveAt: goLive}

	err := eng.RunDrop(context.Background(), "butterandcrumble", sf, window)
	require.NoError(t, err)

	// The pipeline must not fire before the window goes live.
	assert.False(t, time.Now().Before(goLive), "returned before go-live")

	require.Len(t, receipts.saved, 1)
	conf := receipts.saved[0]
	assert.Equal(t, core.OrderConfirmed, conf.Status)
	assert.Len(t, conf.Lines, 2)
	assert.True(t, conf.Total.IsPositive())

	assert.True(t, feed.seen(liveserver.TypeArmed))
	assert.True(t, feed.seen(liveserver.TypeStage))
	assert.True(t, feed.seen(liveserver.TypeOrderConfirmed))

	assert.Equal(t, 1, sf.CallCount("createCart"))
	assert.Equal(t, 1, sf.CallCount("checkout"))
}

func TestRunDrop_DeclinedWindowNeverOrders(t *testing.T) {
	sf := mock.NewMockStorefront("butterandcrumble")
	cfg := testConfig("butterandcrumble")
	eng, receipts, _ := newTestEngine(cfg, sf, Options{
		Confirm: func(seller string, window *core.SellWindow) bool { return false },
	})

	window := &core.SellWindow{ID: "w1", GoLiveAt: time.Now().Add(time.Hour)}
	err := eng.RunDrop(context.Background(), "butterandcrumble", sf, window)
	require.NoError(t, err)

	assert.Empty(t, receipts.saved)
	assert.Equal(t, 0, sf.CallCount("createCart"))
}

func TestRunDrop_PipelineFailureBroadcastsAndSkipsReceipt(t *testing.T) {
	sf := mock.NewMockStorefront("butterandcrumble")
	sf.FailNext("checkout", &apperrors.RetriesExhaustedError{
		Attempts: 3,
		Err:      &apperrors.APIError{StatusCode: 502, Body: []byte("bad gateway")},
	})
	cfg := testConfig("butterandcrumble")
	eng, receipts, feed := newTestEngine(cfg, sf, Options{})

	window := &core.SellWindow{ID: "w1", GoLiveAt: time.Now().Add(50 * time.Millisecond)}
	err := eng.RunDrop(context.Background(), "butterandcrumble", sf, window)

	var failure *pipeline.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, pipeline.StageConfirm, failure.Stage)
	assert.Empty(t, receipts.saved)
	assert.True(t, feed.seen(liveserver.TypeOrderFailed))
	assert.False(t, feed.seen(liveserver.TypeOrderConfirmed))
}

func TestRunDrop_DryRunPlacesNoOrder(t *testing.T) {
	sf := mock.NewMockStorefront("butterandcrumble")
	cfg := testConfig("butterandcrumble")
	cfg.Order.DryRun = true
	eng, receipts, feed := newTestEngine(cfg, sf, Options{})

	window := &core.SellWindow{ID: "w1", GoLiveAt: time.Now().Add(50 * time.Millisecond)}
	err := eng.RunDrop(context.Background(), "butterandcrumble", sf, window)
	require.NoError(t, err)

	assert.Equal(t, 0, sf.CallCount("checkout"))
	assert.Empty(t, receipts.saved)
	assert.False(t, feed.seen(liveserver.TypeOrderConfirmed))
}

func TestWatch_DetectsAndOrdersThenCancels(t *testing.T) {
	sf := mock.NewMockStorefront("butterandcrumble")
	sf.ScriptListings([]*core.SellWindow{
		{ID: "w1", Title: "saturday bake", GoLiveAt: time.Now().Add(300 * time.Millisecond)},
	})
	cfg := testConfig("butterandcrumble")
	eng, receipts, feed := newTestEngine(cfg, sf, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Watch(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		receipts.mu.Lock()
		n := len(receipts.saved)
		receipts.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on cancellation")
	}

	require.Len(t, receipts.saved, 1)
	assert.True(t, feed.seen(liveserver.TypeWindowDetected))
	assert.True(t, feed.seen(liveserver.TypeOrderConfirmed))
}

func TestWatch_SurvivesListingFailure(t *testing.T) {
	sf := mock.NewMockStorefront("butterandcrumble")
	sf.FailNext("listUpcomingWindows", &apperrors.RetriesExhaustedError{
		Attempts: 3,
		Err:      &apperrors.APIError{StatusCode: 503, Body: []byte("overloaded")},
	})
	sf.ScriptListings([]*core.SellWindow{
		{ID: "w1", Title: "saturday bake", GoLiveAt: time.Now().Add(2 * time.Second)},
	})
	cfg := testConfig("butterandcrumble")
	eng, receipts, feed := newTestEngine(cfg, sf, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Watch(ctx) }()

	// The first poll exhausts its retries; the watcher must resume and
	// order from the window the next poll returns.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		receipts.mu.Lock()
		n := len(receipts.saved)
		receipts.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on cancellation")
	}

	require.Len(t, receipts.saved, 1, "window after a failed poll must still be ordered")
	assert.Equal(t, core.OrderConfirmed, receipts.saved[0].Status)
	assert.True(t, feed.seen(liveserver.TypeOrderConfirmed))
	assert.GreaterOrEqual(t, sf.CallCount("listUpcomingWindows"), 2)
}

func TestPreflight_FlagsBadSellers(t *testing.T) {
	good := mock.NewMockStorefront("butterandcrumble")
	cfg := testConfig("butterandcrumble", "pricing", "ghostkitchen")
	eng, _, _ := newTestEngine(cfg, good, Options{})

	results := eng.Preflight(context.Background())
	require.Len(t, results, 3)

	byName := map[string]error{}
	for _, r := range results {
		byName[r.Seller] = r.Err
	}
	assert.NoError(t, byName["butterandcrumble"])
	assert.Error(t, byName["pricing"], "reserved path must fail preflight")
	assert.Error(t, byName["ghostkitchen"], "seller without a client must fail preflight")

	healthy := HealthySellers(results)
	assert.Equal(t, []string{"butterandcrumble"}, healthy)
}
