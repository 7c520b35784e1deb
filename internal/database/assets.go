package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/crypto-portfolio/internal/models"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
)

func getAsset(ctx context.Context, q querier, symbol string) (*models.Asset, error) {
	query := `
		SELECT symbol, name, created_at, updated_at
		FROM assets
		WHERE symbol = $1
	`
	var a models.Asset
	err := q.QueryRowContext(ctx, query, symbol).Scan(&a.Symbol, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", portfolio.ErrUnknownAsset, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &a, nil
}

// GetAsset retrieves an asset by symbol
func (db *DB) GetAsset(ctx context.Context, symbol string) (*models.Asset, error) {
	return getAsset(ctx, db.conn, symbol)
}

func (t *ledgerTx) GetAsset(ctx context.Context, symbol string) (*models.Asset, error) {
	return getAsset(ctx, t.tx, symbol)
}

// ListAssets returns the whole catalogue ordered by symbol
func (db *DB) ListAssets(ctx context.Context) ([]*models.Asset, error) {
	query := `
		SELECT symbol, name, created_at, updated_at
		FROM assets
		ORDER BY symbol
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	assets := []*models.Asset{}
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.Symbol, &a.Name, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}
	return assets, nil
}

// UpsertAssets inserts new catalogue entries and renames existing ones in one
// transaction. Invalid entries are skipped and counted.
func (db *DB) UpsertAssets(ctx context.Context, assets []*models.Asset) (upserted, skipped int, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assets (symbol, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at
		WHERE assets.name IS DISTINCT FROM EXCLUDED.name
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, a := range assets {
		if err := a.Validate(); err != nil {
			skipped++
			continue
		}
		if _, err := stmt.ExecContext(ctx, a.Symbol, a.Name, now); err != nil {
			return 0, 0, fmt.Errorf("failed to upsert asset %s: %w", a.Symbol, err)
		}
		upserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return upserted, skipped, nil
}
