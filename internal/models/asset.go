package models

import (
	"errors"
	"time"
)

// QuoteSymbol is the default settlement asset. It is always worth exactly one unit of itself.
const QuoteSymbol = "USD"

const (
	maxSymbolLength = 10
	maxNameLength   = 50
)

// Asset represents a ticker that transactions can be recorded against
type Asset struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Asset) Validate() error {
	if a.Symbol == "" {
		return errors.New("symbol is required")
	}
	if len(a.Symbol) > maxSymbolLength {
		return errors.New("symbol must be at most 10 characters")
	}
	if len(a.Name) > maxNameLength {
		return errors.New("name must be at most 50 characters")
	}
	return nil
}
