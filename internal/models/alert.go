package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Threshold alert rule types
const (
	RuleTypeBelowLow  = "PRICE_BELOW_LOW"
	RuleTypeAboveHigh = "PRICE_ABOVE_HIGH"
)

// AlertHistory represents a recorded threshold crossing for a position
type AlertHistory struct {
	ID               int64           `json:"id"`
	Owner            string          `json:"owner"`
	Symbol           string          `json:"symbol"`
	RuleType         string          `json:"rule_type"`
	TriggeredValue   decimal.Decimal `json:"triggered_value"`
	Threshold        decimal.Decimal `json:"threshold"`
	Message          string          `json:"message,omitempty"`
	NotificationSent bool            `json:"notification_sent"`
	TriggeredAt      time.Time       `json:"triggered_at"`
}
