package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/crypto-portfolio/internal/models"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
)

const positionColumns = `
	id, owner, symbol, quantity, average_price, low_price_level, high_price_level,
	transactions, created_at, updated_at
`

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var snapshot []byte

	err := row.Scan(
		&p.ID, &p.Owner, &p.Symbol, &p.Quantity, &p.AveragePrice, &p.LowPriceLevel, &p.HighPriceLevel,
		&snapshot, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Transactions = []models.SnapshotEntry{}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &p.Transactions); err != nil {
			return nil, fmt.Errorf("failed to decode transaction snapshot: %w", err)
		}
	}
	return &p, nil
}

func getPosition(ctx context.Context, q querier, owner, symbol string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE owner = $1 AND symbol = $2`
	p, err := scanPosition(q.QueryRowContext(ctx, query, owner, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", portfolio.ErrPositionNotFound, owner, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

func savePosition(ctx context.Context, q querier, p *models.Position) error {
	snapshot, err := json.Marshal(p.Transactions)
	if err != nil {
		return fmt.Errorf("failed to encode transaction snapshot: %w", err)
	}

	query := `
		INSERT INTO positions (
			owner, symbol, quantity, average_price, low_price_level, high_price_level,
			transactions, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (owner, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			low_price_level = EXCLUDED.low_price_level,
			high_price_level = EXCLUDED.high_price_level,
			transactions = EXCLUDED.transactions,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err = q.QueryRowContext(ctx, query,
		p.Owner, p.Symbol, p.Quantity, p.AveragePrice, p.LowPriceLevel, p.HighPriceLevel,
		snapshot, now,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

func deletePosition(ctx context.Context, q querier, owner, symbol string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM positions WHERE owner = $1 AND symbol = $2`, owner, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

func listPositions(ctx context.Context, q querier, query string, args ...any) ([]*models.Position, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	positions := []*models.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return positions, nil
}

// GetPosition retrieves the cached position for (owner, symbol)
func (db *DB) GetPosition(ctx context.Context, owner, symbol string) (*models.Position, error) {
	return getPosition(ctx, db.conn, owner, symbol)
}

// ListPositions returns an owner's positions ordered by symbol
func (db *DB) ListPositions(ctx context.Context, owner string) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE owner = $1 ORDER BY symbol`
	return listPositions(ctx, db.conn, query, owner)
}

// ListAllPositions returns every owner's positions, used by the alert sweep
func (db *DB) ListAllPositions(ctx context.Context) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions ORDER BY owner, symbol`
	return listPositions(ctx, db.conn, query)
}

// HeldSymbols returns the distinct symbols with an open position
func (db *DB) HeldSymbols(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT symbol FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list held symbols: %w", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func (t *ledgerTx) GetPosition(ctx context.Context, owner, symbol string) (*models.Position, error) {
	return getPosition(ctx, t.tx, owner, symbol)
}

func (t *ledgerTx) SavePosition(ctx context.Context, p *models.Position) error {
	return savePosition(ctx, t.tx, p)
}

func (t *ledgerTx) DeletePosition(ctx context.Context, owner, symbol string) error {
	return deletePosition(ctx, t.tx, owner, symbol)
}
