package models

import "time"

// Event types carried on Kafka
const (
	EventTransactionSubmitted = "TRANSACTION_SUBMITTED"
	EventPositionUpdated      = "POSITION_UPDATED"
	EventPositionClosed       = "POSITION_CLOSED"
	EventThresholdCrossed     = "THRESHOLD_CROSSED"
)

// TransactionEvent is an inbound request to record a trade.
// Quantity and Price are decimal strings, Date is YYYY-MM-DD.
type TransactionEvent struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Source    string `json:"source"`
	Owner     string `json:"owner"`
	Symbol    string `json:"symbol"`
	Date      string `json:"date,omitempty"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
}

// PositionEvent announces the state of a position after a ledger mutation.
// Position is nil when the position was closed.
type PositionEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Owner     string    `json:"owner"`
	Symbol    string    `json:"symbol"`
	Position  *Position `json:"position,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertEvent announces a threshold crossing
type AlertEvent struct {
	EventID   string        `json:"event_id"`
	EventType string        `json:"event_type"`
	Alert     *AlertHistory `json:"alert"`
	Timestamp time.Time     `json:"timestamp"`
}
