package liveserver

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MessageType constants
const (
	TypeWindowDetected = "window_detected"
	TypeArmed          = "armed"
	TypeStage          = "stage"
	TypeOrderConfirmed = "order_confirmed"
	TypeOrderFailed    = "order_failed"
	TypeHeartbeat      = "heartbeat"
)

// NewMessage creates a Message
func NewMessage(msgType string, data interface{}) Message {
	return Message{Type: msgType, Data: data}
}

// WindowEvent is the payload for window_detected and armed messages.
type WindowEvent struct {
	Seller   string `json:"seller"`
	WindowID string `json:"window_id"`
	Title    string `json:"title,omitempty"`
	GoLiveAt int64  `json:"go_live_at"`
}

// StageEvent is the payload for stage messages.
type StageEvent struct {
	Seller string `json:"seller"`
	Stage  string `json:"stage"`
	CartID string `json:"cart_id,omitempty"`
}

// OrderEvent is the payload for order_confirmed and order_failed messages.
type OrderEvent struct {
	Seller  string `json:"seller"`
	OrderID string `json:"order_id,omitempty"`
	Status  string `json:"status"`
	Total   string `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`
}
