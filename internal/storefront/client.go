// Package storefront implements the vendor API client. Each operation maps
// one remote procedure, wraps it in the engine retry policy, and returns
// typed results or typed failures.
package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drop_engine/internal/core"
	apperrors "drop_engine/pkg/errors"
	httpclient "drop_engine/pkg/http"
	"drop_engine/pkg/retry"
	"drop_engine/pkg/telemetry"

	"github.com/google/uuid"
)

// Remote procedure paths.
const (
	pathHealth         = "/api/trpc/storefront.info"
	pathUpcomingEvents = "/api/trpc/storefront.upcomingEvents"
	pathCartCreate     = "/api/trpc/cart.create"
	pathCartAddItems   = "/api/trpc/cart.addItems"
	pathCartSelectSlot = "/api/trpc/cart.selectTimeSlot"
	pathCartCheckout   = "/api/trpc/cart.checkout"
)

// Options configures a storefront client.
type Options struct {
	BaseURL       string
	Seller        string
	Timeout       time.Duration
	RatePerSecond int
	Policy        retry.Policy
	Signer        httpclient.Signer
}

// Client implements core.IStorefront over the vendor's HTTP API.
type Client struct {
	http   *httpclient.Client
	seller string
	policy retry.Policy
	logger core.ILogger
}

// NewClient creates a storefront client for one seller.
func NewClient(opts Options, logger core.ILogger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy
	}
	return &Client{
		http:   httpclient.NewClient(opts.BaseURL, opts.Timeout, opts.RatePerSecond, opts.Signer),
		seller: opts.Seller,
		policy: opts.Policy,
		logger: logger.WithField("component", "storefront").WithField("seller", opts.Seller),
	}
}

// GetSeller returns the seller slug this client is bound to.
func (c *Client) GetSeller() string {
	return c.seller
}

// observe reports every remote attempt; the retry loop's sole side effect.
func (c *Client) observe(op string) retry.Observer {
	return func(a retry.Attempt) {
		if m := telemetry.GetGlobalMetrics(); m.RetryAttemptsTotal != nil {
			m.RetryAttemptsTotal.Add(context.Background(), 1)
		}
		if a.Err != nil {
			c.logger.Warn("remote call attempt failed",
				"op", op, "attempt", a.Index, "delay", a.Delay.String(), "error", a.Err)
			return
		}
		if a.Index > 1 {
			c.logger.Info("remote call recovered", "op", op, "attempt", a.Index)
		}
	}
}

// decodeData unwraps the rpc envelope and unmarshals the payload into out.
func decodeData(op string, body []byte, out interface{}) error {
	var env rpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return apperrors.NewValidationError(op, "malformed response envelope: "+err.Error(), 0)
	}
	if env.Error != nil {
		ve := apperrors.NewValidationError(op, env.Error.Message, env.Error.Code)
		if env.Error.LineIndex != nil {
			ve.Line = *env.Error.LineIndex
		}
		return ve
	}
	if len(env.Result.Data) == 0 {
		return apperrors.NewValidationError(op, "response envelope has no data", 0)
	}
	if err := json.Unmarshal(env.Result.Data, out); err != nil {
		return apperrors.NewValidationError(op, "malformed response payload: "+err.Error(), 0)
	}
	return nil
}

// classifyStatus converts a raw 4xx into a stage-tagged validation error.
// Partial-application failures keep the offending line index when the
// vendor response carries one.
func classifyStatus(op string, err error) error {
	var api *apperrors.APIError
	if !errors.As(err, &api) || api.StatusCode >= 500 {
		return err
	}
	var env rpcEnvelope
	if jsonErr := json.Unmarshal(api.Body, &env); jsonErr == nil && env.Error != nil {
		ve := apperrors.NewValidationError(op, env.Error.Message, api.StatusCode)
		if env.Error.LineIndex != nil {
			ve.Line = *env.Error.LineIndex
		}
		return ve
	}
	return apperrors.NewValidationError(op, string(api.Body), api.StatusCode)
}

// CheckHealth verifies the seller storefront is reachable. Used by the
// preflight pool before watchers start; not retried.
func (c *Client) CheckHealth(ctx context.Context) error {
	const op = "checkHealth"
	params := map[string]string{"input": fmt.Sprintf(`{"sellerId":%q}`, c.seller)}
	_, err := c.http.Get(ctx, pathHealth, params)
	if err != nil {
		return classifyStatus(op, err)
	}
	return nil
}

// ListUpcomingWindows fetches the seller's published sell windows. Safe to
// call repeatedly; no vendor-side state change.
func (c *Client) ListUpcomingWindows(ctx context.Context, sellerID string) ([]*core.SellWindow, error) {
	const op = "listUpcomingWindows"
	params := map[string]string{"input": fmt.Sprintf(`{"sellerId":%q}`, sellerID)}

	var windows []*core.SellWindow
	err := retry.Do(ctx, c.policy, apperrors.IsRetryable, c.observe(op), func() error {
		body, err := c.http.Get(ctx, pathUpcomingEvents, params)
		if err != nil {
			return classifyStatus(op, err)
		}
		var payload upcomingEventsDTO
		if err := decodeData(op, body, &payload); err != nil {
			return err
		}
		windows = windows[:0]
		for _, ev := range payload.UpcomingEvents {
			w, err := ev.toCore(op)
			if err != nil {
				return err
			}
			windows = append(windows, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return windows, nil
}

// CreateCart opens a cart against a sell window. Unknown or expired
// windows surface as fatal validation failures.
func (c *Client) CreateCart(ctx context.Context, windowID string, mode core.FulfillmentMode) (*core.Cart, error) {
	const op = "createCart"
	req := map[string]interface{}{
		"sellerId":        c.seller,
		"eventId":         windowID,
		"fulfillmentType": string(mode),
	}

	var cart *core.Cart
	err := retry.Do(ctx, c.policy, apperrors.IsRetryable, c.observe(op), func() error {
		body, err := c.http.Post(ctx, pathCartCreate, req)
		if err != nil {
			return classifyStatus(op, err)
		}
		var payload cartDTO
		if err := decodeData(op, body, &payload); err != nil {
			return err
		}
		cart, err = payload.toCore(op)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// AddLines submits the full line list in one call. All-or-nothing from the
// caller's view: partial application is treated as failure of the whole
// call, with the offending line index surfaced where the vendor names one.
func (c *Client) AddLines(ctx context.Context, cartID string, lines []core.CartLine) (*core.Cart, error) {
	const op = "addLines"
	items := make([]lineDTO, 0, len(lines))
	for _, line := range lines {
		items = append(items, lineFromCore(line))
	}
	req := map[string]interface{}{
		"cartId": cartID,
		"items":  items,
	}

	var cart *core.Cart
	err := retry.Do(ctx, c.policy, apperrors.IsRetryable, c.observe(op), func() error {
		body, err := c.http.Post(ctx, pathCartAddItems, req)
		if err != nil {
			return classifyStatus(op, err)
		}
		var payload cartDTO
		if err := decodeData(op, body, &payload); err != nil {
			return err
		}
		cart, err = payload.toCore(op)
		if err != nil {
			return err
		}
		if len(cart.Lines) < len(lines) {
			return apperrors.NewValidationError(op,
				fmt.Sprintf("vendor applied %d of %d lines", len(cart.Lines), len(lines)), 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// SelectTimeWindow attaches a pickup/delivery slot to the cart. Idempotent:
// reselecting the slot the cart already holds succeeds without side effect,
// so an ambiguous prior outcome is safe to re-invoke. A full slot is a
// fatal validation failure, distinct from a transient 5xx.
func (c *Client) SelectTimeWindow(ctx context.Context, cartID, timeWindowID string) (*core.Cart, error) {
	const op = "selectTimeWindow"
	req := map[string]interface{}{
		"cartId":     cartID,
		"timeSlotId": timeWindowID,
	}

	var cart *core.Cart
	err := retry.Do(ctx, c.policy, apperrors.IsRetryable, c.observe(op), func() error {
		body, err := c.http.Post(ctx, pathCartSelectSlot, req)
		if err != nil {
			return classifyStatus(op, err)
		}
		var payload cartDTO
		if err := decodeData(op, body, &payload); err != nil {
			return err
		}
		cart, err = payload.toCore(op)
		if err != nil {
			return err
		}
		if cart.TimeWindow == nil {
			return apperrors.NewValidationError(op, "vendor response carries no time window", 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// Checkout finalizes the cart. Carries a client-generated idempotency key
// so an ambiguous timeout cannot double-place the order.
func (c *Client) Checkout(ctx context.Context, cartID string, customer core.Customer, payment core.Payment) (*core.OrderConfirmation, error) {
	const op = "checkout"
	req := map[string]interface{}{
		"cartId":         cartID,
		"idempotencyKey": uuid.NewString(),
		"customer": map[string]string{
			"name":  customer.Name,
			"email": customer.Email,
			"phone": customer.Phone,
		},
		"payment": map[string]string{
			"token": payment.Token,
		},
	}

	var conf *core.OrderConfirmation
	err := retry.Do(ctx, c.policy, apperrors.IsRetryable, c.observe(op), func() error {
		body, err := c.http.Post(ctx, pathCartCheckout, req)
		if err != nil {
			return classifyStatus(op, err)
		}
		var payload confirmationDTO
		if err := decodeData(op, body, &payload); err != nil {
			return err
		}
		conf, err = payload.toCore(op)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}
