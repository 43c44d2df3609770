package storefront

import (
	"encoding/json"
	"time"

	"drop_engine/internal/core"
	apperrors "drop_engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// The vendor exposes a tRPC-style JSON namespace. The envelope and payload
// shapes below are validated at this boundary; anything missing or
// malformed becomes a ValidationError, never a silent default.

type rpcEnvelope struct {
	Result struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

type rpcError struct {
	Message   string `json:"message"`
	Code      int    `json:"code"`
	LineIndex *int   `json:"lineIndex,omitempty"`
}

type eventDTO struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	GoLiveAt int64  `json:"goLiveAt"` // epoch-ms
	ClosesAt *int64 `json:"closesAt,omitempty"`
}

type upcomingEventsDTO struct {
	UpcomingEvents []eventDTO `json:"upcomingEvents"`
}

type optionDTO struct {
	CategoryID   string   `json:"categoryId"`
	SelectionIDs []string `json:"selectionIds"`
}

type lineDTO struct {
	ItemID   string      `json:"itemId"`
	Quantity int         `json:"quantity"`
	Options  []optionDTO `json:"options,omitempty"`
}

type timeWindowDTO struct {
	ID        string `json:"id"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type cartDTO struct {
	CartID          string         `json:"cartId"`
	EventID         string         `json:"eventId"`
	FulfillmentType string         `json:"fulfillmentType"`
	Items           []lineDTO      `json:"items"`
	TimeWindow      *timeWindowDTO `json:"timeWindow,omitempty"`
	CreatedAt       int64          `json:"createdAt"`
	ExpiresAt       int64          `json:"expiresAt"`
}

type confirmationDTO struct {
	OrderID       string    `json:"orderId"`
	Status        string    `json:"status"`
	Items         []lineDTO `json:"items"`
	Total         string    `json:"total"`
	CustomerEmail string    `json:"customerEmail"`
}

func epochMS(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func (d eventDTO) toCore(op string) (*core.SellWindow, error) {
	if d.ID == "" {
		return nil, apperrors.NewValidationError(op, "event missing id", 0)
	}
	if d.GoLiveAt == 0 {
		return nil, apperrors.NewValidationError(op, "event missing goLiveAt", 0)
	}
	w := &core.SellWindow{
		ID:       d.ID,
		Title:    d.Title,
		GoLiveAt: epochMS(d.GoLiveAt),
	}
	if d.ClosesAt != nil {
		w.ClosesAt = epochMS(*d.ClosesAt)
	}
	return w, nil
}

func (d lineDTO) toCore() core.CartLine {
	line := core.CartLine{ItemID: d.ItemID, Quantity: d.Quantity}
	for _, opt := range d.Options {
		line.Options = append(line.Options, core.OptionSelection{
			CategoryID: opt.CategoryID,
			ChoiceIDs:  opt.SelectionIDs,
		})
	}
	return line
}

func lineFromCore(line core.CartLine) lineDTO {
	d := lineDTO{ItemID: line.ItemID, Quantity: line.Quantity}
	for _, opt := range line.Options {
		d.Options = append(d.Options, optionDTO{
			CategoryID:   opt.CategoryID,
			SelectionIDs: opt.ChoiceIDs,
		})
	}
	return d
}

func (d cartDTO) toCore(op string) (*core.Cart, error) {
	if d.CartID == "" {
		return nil, apperrors.NewValidationError(op, "cart missing cartId", 0)
	}
	cart := &core.Cart{
		ID:          d.CartID,
		WindowID:    d.EventID,
		Fulfillment: core.FulfillmentMode(d.FulfillmentType),
		CreatedAt:   epochMS(d.CreatedAt),
		ExpiresAt:   epochMS(d.ExpiresAt),
	}
	for _, item := range d.Items {
		cart.Lines = append(cart.Lines, item.toCore())
	}
	if d.TimeWindow != nil {
		if d.TimeWindow.ID == "" {
			return nil, apperrors.NewValidationError(op, "time window missing id", 0)
		}
		cart.TimeWindow = &core.TimeWindow{
			ID:        d.TimeWindow.ID,
			StartTime: epochMS(d.TimeWindow.StartTime),
			EndTime:   epochMS(d.TimeWindow.EndTime),
		}
	}
	return cart, nil
}

func (d confirmationDTO) toCore(op string) (*core.OrderConfirmation, error) {
	if d.OrderID == "" {
		return nil, apperrors.NewValidationError(op, "confirmation missing orderId", 0)
	}
	status := core.OrderStatus(d.Status)
	switch status {
	case core.OrderConfirmed, core.OrderPending, core.OrderFailed:
	default:
		return nil, apperrors.NewValidationError(op, "confirmation has unknown status "+d.Status, 0)
	}
	total, err := decimal.NewFromString(d.Total)
	if err != nil {
		return nil, apperrors.NewValidationError(op, "confirmation total is not numeric: "+d.Total, 0)
	}
	conf := &core.OrderConfirmation{
		OrderID:       d.OrderID,
		Status:        status,
		Total:         total,
		CustomerEmail: d.CustomerEmail,
		PlacedAt:      time.Now(),
	}
	for _, item := range d.Items {
		conf.Lines = append(conf.Lines, item.toCore())
	}
	return conf, nil
}
