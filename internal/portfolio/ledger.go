package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/metrics"
	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// RecordRequest describes a trade to append to the ledger. A zero Date means today.
// Source and ExternalID are optional; when both are set a second request with the
// same pair is rejected with ErrDuplicateTransaction.
type RecordRequest struct {
	Owner      string
	Symbol     string
	Date       time.Time
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Source     string
	ExternalID string
}

// RecordResult reports what the ledger stored.
type RecordResult struct {
	Transaction       *models.Transaction `json:"transaction"`
	QuoteTransaction  *models.Transaction `json:"quote_transaction,omitempty"`
	RequestedQuantity decimal.Decimal     `json:"requested_quantity"`
	// Clamped is set when a disposal exceeded the holding and was cut down to it.
	// A disposal with nothing held is clamped to zero: Transaction is then nil and
	// nothing is stored.
	Clamped  bool             `json:"clamped"`
	Position *models.Position `json:"position,omitempty"`
}

// Stored reports whether the ledger wrote a transaction.
func (r *RecordResult) Stored() bool { return r.Transaction != nil }

// Ledger is the only writer of transactions. Every mutation recalculates the affected
// positions inside the same unit of work.
type Ledger struct {
	store      Store
	aggregator *Aggregator
	opts       options
}

func NewLedger(store Store, opts ...Option) *Ledger {
	return &Ledger{
		store:      store,
		aggregator: NewAggregator(store, opts...),
		opts:       newOptions(opts),
	}
}

// QuoteSymbol returns the settlement asset the ledger pairs trades against.
func (l *Ledger) QuoteSymbol() string { return l.opts.quote }

func (l *Ledger) validate(req *RecordRequest) error {
	if req.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidTransaction)
	}
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidTransaction)
	}
	if req.Quantity.IsZero() {
		return fmt.Errorf("%w: quantity must be non-zero", ErrInvalidTransaction)
	}
	if req.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidTransaction)
	}
	if req.Date.IsZero() {
		req.Date = l.opts.today()
	}
	req.Date = models.Day(req.Date)
	if req.Date.After(l.opts.today()) {
		return fmt.Errorf("%w: date %s is in the future", ErrInvalidTransaction, models.FormatDate(req.Date))
	}
	return nil
}

// Record appends a trade. A disposal larger than the current non-quote holding is
// clamped to the holding. Unless the asset is the quote asset, a generated quote
// transaction carrying the opposite cash flow is stored alongside it.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	if err := l.validate(&req); err != nil {
		return nil, err
	}

	result := &RecordResult{RequestedQuantity: req.Quantity}
	var events []*models.PositionEvent

	err := l.store.InTx(ctx, req.Owner, func(tx StoreTx) error {
		events = events[:0]

		if _, err := tx.GetAsset(ctx, req.Symbol); err != nil {
			return fmt.Errorf("record %s: %w", req.Symbol, err)
		}
		if req.Source != "" && req.ExternalID != "" {
			exists, err := tx.TransactionExists(ctx, req.Source, req.ExternalID)
			if err != nil {
				return fmt.Errorf("record %s: %w", req.Symbol, err)
			}
			if exists {
				return fmt.Errorf("%w: %s/%s", ErrDuplicateTransaction, req.Source, req.ExternalID)
			}
		}

		primary := &models.Transaction{
			Owner:      req.Owner,
			Symbol:     req.Symbol,
			Date:       req.Date,
			Quantity:   req.Quantity,
			Price:      req.Price,
			Source:     req.Source,
			ExternalID: req.ExternalID,
		}

		isQuote := req.Symbol == l.opts.quote
		if !isQuote && primary.IsDisposal() {
			held := decimal.Zero
			pos, err := tx.GetPosition(ctx, req.Owner, req.Symbol)
			switch {
			case err == nil:
				held = pos.Quantity
			case !errors.Is(err, ErrPositionNotFound):
				return fmt.Errorf("record %s: %w", req.Symbol, err)
			}
			if held.Add(primary.Quantity).IsNegative() {
				primary.Quantity = held.Neg()
				result.Clamped = true
			}
			if primary.Quantity.IsZero() {
				// nothing left to dispose: report the clamp, store nothing
				result.Position = pos
				return nil
			}
		}

		if !isQuote {
			quote := &models.Transaction{
				Owner:     req.Owner,
				Symbol:    l.opts.quote,
				Date:      req.Date,
				Quantity:  primary.CashFlow().Neg(),
				Price:     decimal.NewFromInt(1),
				Generated: true,
			}
			if err := tx.CreateTransaction(ctx, quote); err != nil {
				return fmt.Errorf("record quote leg: %w", err)
			}
			primary.QuoteTransactionID = &quote.ID
			result.QuoteTransaction = quote
		}

		if err := tx.CreateTransaction(ctx, primary); err != nil {
			return fmt.Errorf("record %s: %w", req.Symbol, err)
		}
		result.Transaction = primary

		pos, err := l.aggregator.recalculate(ctx, tx, req.Owner, req.Symbol)
		if err != nil {
			return err
		}
		result.Position = pos
		events = append(events, positionEvent(req.Owner, req.Symbol, pos))

		if !isQuote {
			quotePos, err := l.aggregator.recalculate(ctx, tx, req.Owner, l.opts.quote)
			if err != nil {
				return err
			}
			events = append(events, positionEvent(req.Owner, l.opts.quote, quotePos))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Stored() {
		metrics.ClampedDisposals.Inc()
		l.opts.logger.Info("disposal clamped to nothing held",
			"owner", req.Owner, "symbol", req.Symbol,
			"requested", result.RequestedQuantity.String())
		return result, nil
	}

	metrics.LedgerMutations.WithLabelValues("record").Inc()
	if result.Clamped {
		metrics.ClampedDisposals.Inc()
		l.opts.logger.Info("disposal clamped to holding",
			"owner", req.Owner, "symbol", req.Symbol,
			"requested", result.RequestedQuantity.String(),
			"recorded", result.Transaction.Quantity.String())
	}
	l.publish(ctx, events)
	return result, nil
}

// Remove deletes a transaction and, for a paired trade, its generated quote
// transaction. Generated quote transactions cannot be removed on their own.
func (l *Ledger) Remove(ctx context.Context, owner string, id int64) error {
	var events []*models.PositionEvent

	err := l.store.InTx(ctx, owner, func(tx StoreTx) error {
		events = events[:0]

		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return fmt.Errorf("remove %d: %w", id, err)
		}
		if t.Owner != owner {
			return fmt.Errorf("remove %d: %w", id, ErrTransactionNotFound)
		}
		if t.Generated {
			return fmt.Errorf("remove %d: %w", id, ErrGeneratedTransaction)
		}
		if t.Symbol != l.opts.quote && !t.IsDisposal() {
			if err := l.checkRemovable(ctx, tx, t); err != nil {
				return err
			}
		}

		if err := tx.DeleteTransaction(ctx, t.ID); err != nil {
			return fmt.Errorf("remove %d: %w", id, err)
		}
		if t.QuoteTransactionID != nil {
			if err := tx.DeleteTransaction(ctx, *t.QuoteTransactionID); err != nil {
				return fmt.Errorf("remove quote leg of %d: %w", id, err)
			}
		}

		symbols := []string{t.Symbol}
		if t.QuoteTransactionID != nil {
			symbols = append(symbols, l.opts.quote)
		}
		for _, symbol := range symbols {
			pos, err := l.aggregator.recalculate(ctx, tx, owner, symbol)
			if err != nil {
				return err
			}
			events = append(events, positionEvent(owner, symbol, pos))
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.LedgerMutations.WithLabelValues("remove").Inc()
	l.publish(ctx, events)
	return nil
}

// checkRemovable rejects removing t when the pair's remaining transactions would
// sum below zero.
func (l *Ledger) checkRemovable(ctx context.Context, tx StoreTx, t *models.Transaction) error {
	txs, err := tx.ListTransactions(ctx, t.Owner, t.Symbol)
	if err != nil {
		return fmt.Errorf("remove %d: %w", t.ID, err)
	}
	remaining := decimal.Zero
	for _, other := range txs {
		if other.ID != t.ID {
			remaining = remaining.Add(other.Quantity)
		}
	}
	if remaining.IsNegative() {
		return fmt.Errorf("%w: removing %d leaves %s %s", ErrWouldOverdraw, t.ID, remaining.String(), t.Symbol)
	}
	return nil
}

func (l *Ledger) publish(ctx context.Context, events []*models.PositionEvent) {
	if l.opts.publisher == nil {
		return
	}
	for _, e := range events {
		if err := l.opts.publisher.PublishPositionEvent(ctx, e); err != nil {
			l.opts.logger.Warn("failed to publish position event",
				"owner", e.Owner, "symbol", e.Symbol, "err", err)
		}
	}
}

func positionEvent(owner, symbol string, pos *models.Position) *models.PositionEvent {
	eventType := models.EventPositionUpdated
	if pos == nil {
		eventType = models.EventPositionClosed
	}
	return &models.PositionEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Owner:     owner,
		Symbol:    symbol,
		Position:  pos,
		Timestamp: time.Now().UTC(),
	}
}
