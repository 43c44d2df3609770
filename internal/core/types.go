package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// FulfillmentMode selects how a cart will be fulfilled.
type FulfillmentMode string

const (
	FulfillmentPickup   FulfillmentMode = "PICKUP"
	FulfillmentDelivery FulfillmentMode = "DELIVERY"
)

// SellWindow is a vendor drop: a time-limited sales window with finite
// inventory. Immutable once observed; the monitor replaces its cached
// reference wholesale when a newer window supersedes it.
type SellWindow struct {
	ID       string
	Title    string
	GoLiveAt time.Time
	ClosesAt time.Time // zero when the vendor did not publish one
}

// OptionSelection maps an option category to the chosen option ids.
// Cardinality within a category is enforced server-side, not here.
type OptionSelection struct {
	CategoryID string
	ChoiceIDs  []string
}

// CartLine is one item entry in a cart.
type CartLine struct {
	ItemID   string
	Quantity int
	Options  []OptionSelection
}

// TimeWindow is a pickup/delivery slot attached to a cart. Selecting the
// same window id again on a cart that already holds it succeeds without
// side effect.
type TimeWindow struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
}

// Cart is the vendor-side cart as last reported by the storefront. It
// becomes invalid server-side once checkout succeeds or ExpiresAt elapses;
// both are terminal, non-retryable states.
type Cart struct {
	ID          string
	WindowID    string
	Fulfillment FulfillmentMode
	Lines       []CartLine
	TimeWindow  *TimeWindow
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// OrderStatus is the vendor-defined status tag on a confirmation.
type OrderStatus string

const (
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderPending   OrderStatus = "PENDING"
	OrderFailed    OrderStatus = "FAILED"
)

// OrderConfirmation is created exactly once per successful checkout and is
// immutable thereafter.
type OrderConfirmation struct {
	OrderID       string
	Status        OrderStatus
	Lines         []CartLine
	Total         decimal.Decimal
	CustomerEmail string
	PlacedAt      time.Time
}

// Customer is the contact information submitted at checkout.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Payment is an opaque payment reference. The engine never inspects it;
// payment-method management lives outside this system.
type Payment struct {
	Token string
}
