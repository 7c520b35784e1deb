package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotEntry is one materialized transaction on a Position, used to seed
// time-series reconstruction without re-reading the ledger.
type SnapshotEntry struct {
	Date     string          `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	CashFlow decimal.Decimal `json:"cash_flow"`
}

// Position is the cached aggregate of every transaction for one (owner, asset) pair
type Position struct {
	ID             int64           `json:"id"`
	Owner          string          `json:"owner"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	LowPriceLevel  decimal.Decimal `json:"low_price_level"`
	HighPriceLevel decimal.Decimal `json:"high_price_level"`
	Transactions   []SnapshotEntry `json:"transactions"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SameAs reports whether p and o carry the same derived state. Identity and
// timestamps are ignored.
func (p *Position) SameAs(o *Position) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Owner != o.Owner || p.Symbol != o.Symbol {
		return false
	}
	if !p.Quantity.Equal(o.Quantity) ||
		!p.AveragePrice.Equal(o.AveragePrice) ||
		!p.LowPriceLevel.Equal(o.LowPriceLevel) ||
		!p.HighPriceLevel.Equal(o.HighPriceLevel) {
		return false
	}
	if len(p.Transactions) != len(o.Transactions) {
		return false
	}
	for i, e := range p.Transactions {
		f := o.Transactions[i]
		if e.Date != f.Date || !e.Quantity.Equal(f.Quantity) || !e.CashFlow.Equal(f.CashFlow) {
			return false
		}
	}
	return true
}
