// Package core defines the core types and interfaces for the drop engine
package core

import (
	"context"
)

// IStorefront defines the operations the engine needs from a vendor
// storefront. Implementations map these to the vendor's remote API and are
// responsible for retry and error classification; callers see either typed
// results or typed failures.
type IStorefront interface {
	// Identity
	GetSeller() string
	CheckHealth(ctx context.Context) error

	// Window discovery. Safe to call repeatedly; no vendor-side state change.
	ListUpcomingWindows(ctx context.Context, sellerID string) ([]*SellWindow, error)

	// Cart lifecycle, one call per pipeline stage.
	CreateCart(ctx context.Context, windowID string, mode FulfillmentMode) (*Cart, error)
	AddLines(ctx context.Context, cartID string, lines []CartLine) (*Cart, error)
	SelectTimeWindow(ctx context.Context, cartID, timeWindowID string) (*Cart, error)
	Checkout(ctx context.Context, cartID string, customer Customer, payment Payment) (*OrderConfirmation, error)
}

// IReceiptStore persists order confirmations after checkout.
type IReceiptStore interface {
	SaveReceipt(ctx context.Context, seller string, conf *OrderConfirmation) error
	ListReceipts(ctx context.Context, seller string, limit int) ([]*OrderConfirmation, error)
	Close() error
}

// ILogger defines the logging interface used across the engine.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
