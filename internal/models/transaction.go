package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single ledger entry for one (owner, asset) pair.
// Positive quantities are acquisitions, negative quantities are disposals.
type Transaction struct {
	ID                 int64           `json:"id"`
	Owner              string          `json:"owner"`
	Symbol             string          `json:"symbol"`
	Date               time.Time       `json:"date"`
	Quantity           decimal.Decimal `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	QuoteTransactionID *int64          `json:"quote_transaction_id,omitempty"`
	Generated          bool            `json:"generated"`
	Source             string          `json:"source,omitempty"`
	ExternalID         string          `json:"external_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// CashFlow returns quantity * price.
func (t *Transaction) CashFlow() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// IsDisposal reports whether the transaction reduces the position.
func (t *Transaction) IsDisposal() bool {
	return t.Quantity.IsNegative()
}

func (t *Transaction) String() string {
	return fmt.Sprintf("%s %s | $%s | %s | %s",
		t.Quantity, t.Symbol, t.Price.StringFixed(2), t.Owner, FormatDate(t.Date))
}
