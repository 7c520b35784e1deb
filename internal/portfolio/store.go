package portfolio

import (
	"context"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// Store is the persistence surface for ledger and position state.
// Absence is reported with ErrPositionNotFound, ErrTransactionNotFound and ErrUnknownAsset.
type Store interface {
	// InTx runs fn in a single unit of work. Units of work for the same owner are
	// serialised; if fn returns an error nothing it wrote is kept.
	InTx(ctx context.Context, owner string, fn func(tx StoreTx) error) error

	GetPosition(ctx context.Context, owner, symbol string) (*models.Position, error)
	ListPositions(ctx context.Context, owner string) ([]*models.Position, error)
	// ListTransactions returns chronological transactions; an empty symbol lists every asset.
	ListTransactions(ctx context.Context, owner, symbol string) ([]*models.Transaction, error)
}

// StoreTx is the view of a Store inside InTx.
type StoreTx interface {
	GetAsset(ctx context.Context, symbol string) (*models.Asset, error)

	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	ListTransactions(ctx context.Context, owner, symbol string) ([]*models.Transaction, error)
	TransactionExists(ctx context.Context, source, externalID string) (bool, error)

	GetPosition(ctx context.Context, owner, symbol string) (*models.Position, error)
	// SavePosition inserts or replaces the position keyed by (owner, symbol) and
	// fills in its ID and timestamps.
	SavePosition(ctx context.Context, p *models.Position) error
	DeletePosition(ctx context.Context, owner, symbol string) error
}

// CandleProvider supplies price candles for an asset. An asset or period with no
// data yields an empty slice and a nil error.
type CandleProvider interface {
	Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error)
}

// EventPublisher receives position changes after a ledger mutation commits.
type EventPublisher interface {
	PublishPositionEvent(ctx context.Context, event *models.PositionEvent) error
}
