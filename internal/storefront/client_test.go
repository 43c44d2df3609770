package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"drop_engine/internal/core"
	apperrors "drop_engine/pkg/errors"
	"drop_engine/pkg/retry"
)

type nopLogger struct{}

func (l *nopLogger) Debug(string, ...interface{})                {}
func (l *nopLogger) Info(string, ...interface{})                 {}
func (l *nopLogger) Warn(string, ...interface{})                 {}
func (l *nopLogger) Error(string, ...interface{})                {}
func (l *nopLogger) Fatal(string, ...interface{})                {}
func (l *nopLogger) WithField(string, interface{}) core.ILogger  { return l }
func (l *nopLogger) WithFields(map[string]interface{}) core.ILogger { return l }

// fastPolicy keeps retried tests quick without changing attempt semantics.
var fastPolicy = retry.Policy{MaxAttempts: 3, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{
		BaseURL:       server.URL,
		Seller:        "butterandcrumble",
		Timeout:       2 * time.Second,
		RatePerSecond: 1000,
		Policy:        fastPolicy,
	}, &nopLogger{})
}

func envelope(data interface{}) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"result": map[string]interface{}{"data": data},
	})
	return payload
}

func TestListUpcomingWindows(t *testing.T) {
	goLive := time.Now().Add(time.Hour).UnixMilli()
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathUpcomingEvents {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write(envelope(map[string]interface{}{
			"upcomingEvents": []map[string]interface{}{
				{"id": "w1", "title": "Sourdough Saturday", "goLiveAt": goLive},
			},
		}))
	}))

	windows, err := client.ListUpcomingWindows(context.Background(), "butterandcrumble")
	if err != nil {
		t.Fatalf("ListUpcomingWindows failed: %v", err)
	}
	if len(windows) != 1 || windows[0].ID != "w1" {
		t.Fatalf("unexpected windows: %+v", windows)
	}
	if windows[0].GoLiveAt.UnixMilli() != goLive {
		t.Errorf("goLiveAt mismatch: %v", windows[0].GoLiveAt)
	}
}

func TestListUpcomingWindows_RetriesOn5xx(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(envelope(map[string]interface{}{"upcomingEvents": []interface{}{}}))
	}))

	windows, err := client.ListUpcomingWindows(context.Background(), "butterandcrumble")
	if err != nil {
		t.Fatalf("expected recovery on attempt 3, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(windows) != 0 {
		t.Errorf("expected empty window list, got %d", len(windows))
	}
}

func TestCreateCart_FatalOn4xx(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"unknown event","code":404}}`))
	}))

	_, err := client.CreateCart(context.Background(), "missing", core.FulfillmentPickup)
	var ve *apperrors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if attempts != 1 {
		t.Errorf("4xx must not be retried; got %d attempts", attempts)
	}
	if ve.Message != "unknown event" {
		t.Errorf("unexpected message: %q", ve.Message)
	}
}

func TestAddLines_SurfacesLineIndex(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"item not in event","code":422,"lineIndex":1}}`))
	}))

	lines := []core.CartLine{
		{ItemID: "itm_a", Quantity: 1},
		{ItemID: "itm_bogus", Quantity: 2},
	}
	_, err := client.AddLines(context.Background(), "c1", lines)
	var ve *apperrors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Line != 1 {
		t.Errorf("expected offending line index 1, got %d", ve.Line)
	}
}

func TestAddLines_PartialApplicationIsFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(envelope(map[string]interface{}{
			"cartId":  "c1",
			"eventId": "w1",
			"items": []map[string]interface{}{
				{"itemId": "itm_a", "quantity": 1},
			},
		}))
	}))

	lines := []core.CartLine{
		{ItemID: "itm_a", Quantity: 1},
		{ItemID: "itm_b", Quantity: 1},
	}
	_, err := client.AddLines(context.Background(), "c1", lines)
	var ve *apperrors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for partial application, got %v", err)
	}
}

func TestSelectTimeWindow_Idempotent(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write(envelope(map[string]interface{}{
			"cartId":  "c1",
			"eventId": "w1",
			"items":   []map[string]interface{}{{"itemId": "itm_a", "quantity": 1}},
			"timeWindow": map[string]interface{}{
				"id":        "slot9",
				"startTime": time.Now().UnixMilli(),
				"endTime":   time.Now().Add(30 * time.Minute).UnixMilli(),
			},
		}))
	}))

	first, err := client.SelectTimeWindow(context.Background(), "c1", "slot9")
	if err != nil {
		t.Fatalf("first selection failed: %v", err)
	}
	second, err := client.SelectTimeWindow(context.Background(), "c1", "slot9")
	if err != nil {
		t.Fatalf("reselection failed: %v", err)
	}
	if first.TimeWindow.ID != second.TimeWindow.ID {
		t.Errorf("reselection changed the slot: %q vs %q", first.TimeWindow.ID, second.TimeWindow.ID)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestCheckout_ExhaustsRetries(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Checkout(context.Background(), "c1", core.Customer{Name: "A", Email: "a@b.c"}, core.Payment{Token: "tok"})
	var re *apperrors.RetriesExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetriesExhaustedError, got %T: %v", err, err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	var api *apperrors.APIError
	if !errors.As(re.Err, &api) || api.StatusCode != http.StatusBadGateway {
		t.Errorf("exhaustion must wrap the final 502, got %v", re.Err)
	}
}

func TestCheckout_MalformedResponseIsValidationError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"data":{"orderId":"o1","status":"SHRUGGED","items":[],"total":"12.99"}}}`))
	}))

	_, err := client.Checkout(context.Background(), "c1", core.Customer{}, core.Payment{})
	var ve *apperrors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
}

func TestCheckout_Success(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["idempotencyKey"] == "" {
			t.Error("checkout must carry an idempotency key")
		}
		_, _ = w.Write(envelope(map[string]interface{}{
			"orderId":       "ord_42",
			"status":        "CONFIRMED",
			"items":         []map[string]interface{}{{"itemId": "itm_a", "quantity": 2}},
			"total":         "25.50",
			"customerEmail": "a@b.c",
		}))
	}))

	conf, err := client.Checkout(context.Background(), "c1", core.Customer{Name: "A", Email: "a@b.c"}, core.Payment{Token: "tok"})
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if conf.Status != core.OrderConfirmed {
		t.Errorf("expected CONFIRMED, got %s", conf.Status)
	}
	if conf.Total.String() != "25.5" {
		t.Errorf("unexpected total %s", conf.Total)
	}
	if fmt.Sprint(conf.Lines[0].Quantity) != "2" {
		t.Errorf("unexpected line snapshot %+v", conf.Lines)
	}
}
