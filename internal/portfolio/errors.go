package portfolio

import "errors"

var (
	// ErrPositionNotFound means the owner holds nothing in the asset (no data yet).
	ErrPositionNotFound = errors.New("position not found")
	// ErrNoPositions means the owner's ledger is empty.
	ErrNoPositions = errors.New("no positions")
	// ErrEmptyLedger means a reconstruction was asked for an empty transaction snapshot.
	ErrEmptyLedger = errors.New("empty transaction snapshot")
	// ErrPriceDataUnavailable means the price provider had no candles for an asset and period.
	ErrPriceDataUnavailable = errors.New("price data unavailable")
	// ErrMalformedSeries means a series had unsorted or duplicate dates, or mixed periods.
	ErrMalformedSeries = errors.New("malformed series")
	// ErrNoSeries means Combine was called without any series.
	ErrNoSeries = errors.New("no series to combine")

	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrGeneratedTransaction = errors.New("generated quote transaction cannot be removed directly")
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrUnknownAsset         = errors.New("unknown asset")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	// ErrWouldOverdraw means removing an acquisition would leave later disposals
	// selling more than was held.
	ErrWouldOverdraw = errors.New("removal would leave a negative holding")
	ErrAlertNotFound = errors.New("alert not found")
)
