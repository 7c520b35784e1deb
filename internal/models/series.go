package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingsRow is one calendar day of a reconstructed position.
// Quantity and CashFlow are that day's deltas; Total and TotalMoney are running sums.
type HoldingsRow struct {
	Date       time.Time       `json:"date"`
	Quantity   decimal.Decimal `json:"quantity"`
	CashFlow   decimal.Decimal `json:"cash_flow"`
	Total      decimal.Decimal `json:"total"`
	TotalMoney decimal.Decimal `json:"total_money"`
}

// ValueRow is one candle of position value: OHLC are price * holdings.
// Valid is false when the price date had no holdings row; such rows carry zeros
// and must be dropped before charting.
type ValueRow struct {
	Date       time.Time       `json:"date"`
	Valid      bool            `json:"valid"`
	Total      decimal.Decimal `json:"total"`
	TotalMoney decimal.Decimal `json:"total_money"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
}

// ValueSeries is a date-ascending run of ValueRows for one asset or a whole portfolio.
type ValueSeries struct {
	Symbol string     `json:"symbol,omitempty"`
	Period Period     `json:"period"`
	Rows   []ValueRow `json:"rows"`
}

func (s *ValueSeries) Len() int { return len(s.Rows) }

// ValidRows returns the rows that carry holdings.
func (s *ValueSeries) ValidRows() []ValueRow {
	rows := make([]ValueRow, 0, len(s.Rows))
	for _, r := range s.Rows {
		if r.Valid {
			rows = append(rows, r)
		}
	}
	return rows
}

// Last returns a copy of the series truncated to its n most recent rows.
func (s *ValueSeries) Last(n int) *ValueSeries {
	rows := s.Rows
	if n >= 0 && n < len(rows) {
		rows = rows[len(rows)-n:]
	}
	out := &ValueSeries{Symbol: s.Symbol, Period: s.Period, Rows: make([]ValueRow, len(rows))}
	copy(out.Rows, rows)
	return out
}

// Latest returns the most recent valid row.
func (s *ValueSeries) Latest() (ValueRow, bool) {
	for i := len(s.Rows) - 1; i >= 0; i-- {
		if s.Rows[i].Valid {
			return s.Rows[i], true
		}
	}
	return ValueRow{}, false
}
