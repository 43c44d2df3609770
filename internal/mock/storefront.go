// Package mock provides an in-memory storefront for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"drop_engine/internal/core"
	apperrors "drop_engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// MockStorefront implements core.IStorefront with scriptable behavior. Each
// operation can be overridden per call via queued errors, and every call is
// recorded for assertion.
type MockStorefront struct {
	seller string
	mu     sync.Mutex

	// Scripted window listings, consumed in order; the last entry repeats.
	listings [][]*core.SellWindow

	// Queued errors per operation name, consumed first.
	failures map[string][]error

	carts       map[string]*core.Cart
	cartCounter int
	consumed    map[string]bool // carts invalidated by checkout

	// Calls records operation names in invocation order.
	Calls []string

	// ItemPrice sets the per-unit price used for checkout totals.
	ItemPrice decimal.Decimal
}

// NewMockStorefront creates a mock storefront for a seller.
func NewMockStorefront(seller string) *MockStorefront {
	return &MockStorefront{
		seller:    seller,
		failures:  make(map[string][]error),
		carts:     make(map[string]*core.Cart),
		consumed:  make(map[string]bool),
		ItemPrice: decimal.NewFromFloat(12.75),
	}
}

// ScriptListings queues window listings; the final listing repeats forever.
func (m *MockStorefront) ScriptListings(listings ...[]*core.SellWindow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings = append(m.listings, listings...)
}

// FailNext queues an error for the named operation's next invocation.
func (m *MockStorefront) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// CallCount returns how many times the named operation ran.
func (m *MockStorefront) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.Calls {
		if call == op {
			n++
		}
	}
	return n
}

func (m *MockStorefront) record(op string) error {
	m.Calls = append(m.Calls, op)
	if queue := m.failures[op]; len(queue) > 0 {
		err := queue[0]
		m.failures[op] = queue[1:]
		return err
	}
	return nil
}

func (m *MockStorefront) GetSeller() string { return m.seller }

func (m *MockStorefront) CheckHealth(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("checkHealth")
}

func (m *MockStorefront) ListUpcomingWindows(ctx context.Context, sellerID string) ([]*core.SellWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("listUpcomingWindows"); err != nil {
		return nil, err
	}
	if len(m.listings) == 0 {
		return nil, nil
	}
	listing := m.listings[0]
	if len(m.listings) > 1 {
		m.listings = m.listings[1:]
	}
	return listing, nil
}

func (m *MockStorefront) CreateCart(ctx context.Context, windowID string, mode core.FulfillmentMode) (*core.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("createCart"); err != nil {
		return nil, err
	}
	m.cartCounter++
	cart := &core.Cart{
		ID:          fmt.Sprintf("cart-%d", m.cartCounter),
		WindowID:    windowID,
		Fulfillment: mode,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
	m.carts[cart.ID] = cart
	return copyCart(cart), nil
}

func (m *MockStorefront) AddLines(ctx context.Context, cartID string, lines []core.CartLine) (*core.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("addLines"); err != nil {
		return nil, err
	}
	cart, err := m.liveCart(cartID, "addLines")
	if err != nil {
		return nil, err
	}
	cart.Lines = append([]core.CartLine{}, lines...)
	return copyCart(cart), nil
}

func (m *MockStorefront) SelectTimeWindow(ctx context.Context, cartID, timeWindowID string) (*core.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("selectTimeWindow"); err != nil {
		return nil, err
	}
	cart, err := m.liveCart(cartID, "selectTimeWindow")
	if err != nil {
		return nil, err
	}
	// Reselecting the held slot succeeds without side effect.
	if cart.TimeWindow != nil && cart.TimeWindow.ID == timeWindowID {
		return copyCart(cart), nil
	}
	start := time.Now().Add(30 * time.Minute)
	cart.TimeWindow = &core.TimeWindow{ID: timeWindowID, StartTime: start, EndTime: start.Add(30 * time.Minute)}
	return copyCart(cart), nil
}

func (m *MockStorefront) Checkout(ctx context.Context, cartID string, customer core.Customer, payment core.Payment) (*core.OrderConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("checkout"); err != nil {
		return nil, err
	}
	cart, err := m.liveCart(cartID, "checkout")
	if err != nil {
		return nil, err
	}
	if len(cart.Lines) == 0 {
		return nil, apperrors.NewValidationError("checkout", "cart has no lines", 400)
	}
	if cart.TimeWindow == nil {
		return nil, apperrors.NewValidationError("checkout", "cart has no time window", 400)
	}

	m.consumed[cartID] = true
	total := decimal.Zero
	for _, line := range cart.Lines {
		total = total.Add(m.ItemPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return &core.OrderConfirmation{
		OrderID:       "ord-" + cartID,
		Status:        core.OrderConfirmed,
		Lines:         append([]core.CartLine{}, cart.Lines...),
		Total:         total,
		CustomerEmail: customer.Email,
		PlacedAt:      time.Now(),
	}, nil
}

func (m *MockStorefront) liveCart(cartID, op string) (*core.Cart, error) {
	if m.consumed[cartID] {
		return nil, apperrors.NewValidationError(op, "cart already checked out", 410)
	}
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, apperrors.NewValidationError(op, "unknown cart "+cartID, 404)
	}
	return cart, nil
}

func copyCart(c *core.Cart) *core.Cart {
	out := *c
	out.Lines = append([]core.CartLine{}, c.Lines...)
	if c.TimeWindow != nil {
		tw := *c.TimeWindow
		out.TimeWindow = &tw
	}
	return &out
}
