package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

type positionKey struct{ owner, symbol string }

type candleKey struct {
	symbol string
	period models.Period
}

type memoryState struct {
	assets       map[string]models.Asset
	transactions map[int64]models.Transaction
	positions    map[positionKey]models.Position
	nextTxID     int64
	nextPosID    int64
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		assets:       make(map[string]models.Asset, len(s.assets)),
		transactions: make(map[int64]models.Transaction, len(s.transactions)),
		positions:    make(map[positionKey]models.Position, len(s.positions)),
		nextTxID:     s.nextTxID,
		nextPosID:    s.nextPosID,
	}
	for k, v := range s.assets {
		c.assets[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	return c
}

// MemoryStore is a Store and CandleProvider kept in process memory. Units of work
// are serialised by a single lock and rolled back when they fail.
type MemoryStore struct {
	mu      sync.Mutex
	state   *memoryState
	candles map[candleKey][]models.Candle
	alerts  []models.AlertHistory
}

// NewMemoryStore returns an empty store whose catalogue holds only the quote asset.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		state: &memoryState{
			assets:       make(map[string]models.Asset),
			transactions: make(map[int64]models.Transaction),
			positions:    make(map[positionKey]models.Position),
		},
		candles: make(map[candleKey][]models.Candle),
	}
	s.AddAsset(models.Asset{Symbol: models.QuoteSymbol, Name: "US Dollar"})
	return s
}

// AddAsset inserts or renames a catalogue entry.
func (s *MemoryStore) AddAsset(a models.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.state.assets[a.Symbol]; ok {
		a.CreatedAt = existing.CreatedAt
	} else {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.state.assets[a.Symbol] = a
}

// ListAssets returns the catalogue ordered by symbol.
func (s *MemoryStore) ListAssets(ctx context.Context) ([]*models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Asset, 0, len(s.state.assets))
	for _, a := range s.state.assets {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// SetCandles replaces the stored candles for symbol and period.
func (s *MemoryStore) SetCandles(symbol string, period models.Period, candles []models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.Candle, len(candles))
	copy(cp, candles)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
	s.candles[candleKey{symbol, period}] = cp
}

func (s *MemoryStore) Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.candles[candleKey{symbol, period}]
	out := make([]models.Candle, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) InTx(ctx context.Context, owner string, fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&memoryTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) GetPosition(ctx context.Context, owner, symbol string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{state: s.state}).GetPosition(ctx, owner, symbol)
}

func (s *MemoryStore) ListPositions(ctx context.Context, owner string) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Position, 0)
	for k, p := range s.state.positions {
		if k.owner == owner {
			out = append(out, copyPosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, owner, symbol string) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{state: s.state}).ListTransactions(ctx, owner, symbol)
}

// memoryTx works directly on a state the caller already owns.
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetAsset(ctx context.Context, symbol string) (*models.Asset, error) {
	a, ok := t.state.assets[symbol]
	if !ok {
		return nil, ErrUnknownAsset
	}
	return &a, nil
}

func (t *memoryTx) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if _, ok := t.state.assets[tx.Symbol]; !ok {
		return ErrUnknownAsset
	}
	t.state.nextTxID++
	tx.ID = t.state.nextTxID
	tx.CreatedAt = time.Now().UTC()
	stored := *tx
	if tx.QuoteTransactionID != nil {
		id := *tx.QuoteTransactionID
		stored.QuoteTransactionID = &id
	}
	t.state.transactions[tx.ID] = stored
	return nil
}

func (t *memoryTx) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	tx, ok := t.state.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return &tx, nil
}

func (t *memoryTx) DeleteTransaction(ctx context.Context, id int64) error {
	if _, ok := t.state.transactions[id]; !ok {
		return ErrTransactionNotFound
	}
	delete(t.state.transactions, id)
	return nil
}

func (t *memoryTx) ListTransactions(ctx context.Context, owner, symbol string) ([]*models.Transaction, error) {
	out := make([]*models.Transaction, 0)
	for _, tx := range t.state.transactions {
		if tx.Owner != owner || (symbol != "" && tx.Symbol != symbol) {
			continue
		}
		tx := tx
		out = append(out, &tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memoryTx) TransactionExists(ctx context.Context, source, externalID string) (bool, error) {
	for _, tx := range t.state.transactions {
		if tx.Source == source && tx.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) GetPosition(ctx context.Context, owner, symbol string) (*models.Position, error) {
	p, ok := t.state.positions[positionKey{owner, symbol}]
	if !ok {
		return nil, ErrPositionNotFound
	}
	return copyPosition(p), nil
}

func (t *memoryTx) SavePosition(ctx context.Context, p *models.Position) error {
	key := positionKey{p.Owner, p.Symbol}
	now := time.Now().UTC()
	if existing, ok := t.state.positions[key]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		t.state.nextPosID++
		p.ID = t.state.nextPosID
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.state.positions[key] = *copyPosition(*p)
	return nil
}

func (t *memoryTx) DeletePosition(ctx context.Context, owner, symbol string) error {
	delete(t.state.positions, positionKey{owner, symbol})
	return nil
}

func copyPosition(p models.Position) *models.Position {
	entries := make([]models.SnapshotEntry, len(p.Transactions))
	copy(entries, p.Transactions)
	p.Transactions = entries
	return &p
}

// CreateAlertHistory appends a threshold crossing and assigns its ID.
func (s *MemoryStore) CreateAlertHistory(ctx context.Context, h *models.AlertHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.TriggeredAt.IsZero() {
		h.TriggeredAt = time.Now().UTC()
	}
	h.ID = int64(len(s.alerts) + 1)
	s.alerts = append(s.alerts, *h)
	return nil
}

func (s *MemoryStore) GetAlertHistoryByID(ctx context.Context, id int64) (*models.AlertHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || id > int64(len(s.alerts)) {
		return nil, fmt.Errorf("%w: %d", ErrAlertNotFound, id)
	}
	h := s.alerts[id-1]
	return &h, nil
}

// GetAlertHistoryByOwner returns at most limit alerts for owner, newest first.
func (s *MemoryStore) GetAlertHistoryByOwner(ctx context.Context, owner string, limit int) ([]*models.AlertHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.AlertHistory{}
	for i := range s.alerts {
		if s.alerts[i].Owner == owner {
			h := s.alerts[i]
			out = append(out, &h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
