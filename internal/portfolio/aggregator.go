package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/metrics"
	"github.com/trogers1052/crypto-portfolio/internal/models"
)

var two = decimal.NewFromInt(2)

// Aggregate derives a Position from every transaction of one (owner, asset) pair.
// It returns nil when txs is empty.
//
// Quantity is the plain sum, AveragePrice the quantity-weighted mean price (0 when the
// quantity is exactly 0), and the alert levels are half and double the average price.
func Aggregate(owner, symbol string, txs []*models.Transaction) *models.Position {
	if len(txs) == 0 {
		return nil
	}

	ordered := make([]*models.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})

	quantity := decimal.Zero
	weighted := decimal.Zero
	entries := make([]models.SnapshotEntry, 0, len(ordered))
	for _, t := range ordered {
		cashFlow := t.CashFlow()
		quantity = quantity.Add(t.Quantity)
		weighted = weighted.Add(cashFlow)
		entries = append(entries, models.SnapshotEntry{
			Date:     models.FormatDate(t.Date),
			Quantity: t.Quantity,
			CashFlow: cashFlow,
		})
	}

	average := decimal.Zero
	if !quantity.IsZero() {
		average = weighted.Div(quantity)
	}

	return &models.Position{
		Owner:          owner,
		Symbol:         symbol,
		Quantity:       quantity,
		AveragePrice:   average,
		LowPriceLevel:  average.Div(two),
		HighPriceLevel: average.Mul(two),
		Transactions:   entries,
	}
}

// Aggregator keeps the cached Position of a pair in step with its transactions.
type Aggregator struct {
	store Store
	opts  options
}

func NewAggregator(store Store, opts ...Option) *Aggregator {
	return &Aggregator{store: store, opts: newOptions(opts)}
}

// Recalculate recomputes and persists the position for (owner, symbol). It returns
// nil without error when the pair has no transactions left, in which case any stored
// position has been deleted.
func (a *Aggregator) Recalculate(ctx context.Context, owner, symbol string) (*models.Position, error) {
	var pos *models.Position
	err := a.store.InTx(ctx, owner, func(tx StoreTx) error {
		var err error
		pos, err = a.recalculate(ctx, tx, owner, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (a *Aggregator) recalculate(ctx context.Context, tx StoreTx, owner, symbol string) (*models.Position, error) {
	txs, err := tx.ListTransactions(ctx, owner, symbol)
	if err != nil {
		return nil, fmt.Errorf("recalculate %s/%s: %w", owner, symbol, err)
	}

	existing, err := tx.GetPosition(ctx, owner, symbol)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return nil, fmt.Errorf("recalculate %s/%s: %w", owner, symbol, err)
	}

	next := Aggregate(owner, symbol, txs)
	if next == nil {
		if existing != nil {
			if err := tx.DeletePosition(ctx, owner, symbol); err != nil {
				return nil, fmt.Errorf("recalculate %s/%s: %w", owner, symbol, err)
			}
			a.opts.logger.Info("position closed", "owner", owner, "symbol", symbol)
		}
		metrics.Recalculations.WithLabelValues("deleted").Inc()
		return nil, nil
	}

	if existing != nil && existing.SameAs(next) {
		metrics.Recalculations.WithLabelValues("unchanged").Inc()
		return existing, nil
	}

	if err := tx.SavePosition(ctx, next); err != nil {
		return nil, fmt.Errorf("recalculate %s/%s: %w", owner, symbol, err)
	}
	metrics.Recalculations.WithLabelValues("saved").Inc()
	return next, nil
}
