package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Period is the candle granularity offered by the price provider
type Period string

const (
	PeriodDaily  Period = "DAILY"
	PeriodWeekly Period = "WEEKLY"
)

// ParsePeriod accepts DAILY or WEEKLY in any case.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToUpper(s)); p {
	case PeriodDaily, PeriodWeekly:
		return p, nil
	default:
		return "", fmt.Errorf("invalid period %q", s)
	}
}

// Candle is one OHLC price point for an asset
type Candle struct {
	Symbol string          `json:"symbol"`
	Period Period          `json:"period"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
}
