package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
)

// GetCandles returns stored candles for symbol and period in ascending date order.
// No data is an empty slice, not an error.
func (db *DB) GetCandles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error) {
	query := `
		SELECT symbol, period, date, open, high, low, close
		FROM price_candles
		WHERE symbol = $1 AND period = $2
		ORDER BY date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, string(period))
	if err != nil {
		return nil, fmt.Errorf("failed to get candles: %w", err)
	}
	defer rows.Close()

	candles := []models.Candle{}
	for rows.Next() {
		var c models.Candle
		var p string
		if err := rows.Scan(&c.Symbol, &p, &c.Date, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Period = models.Period(p)
		c.Date = models.Day(c.Date)
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candles: %w", err)
	}
	return candles, nil
}

// Candles implements portfolio.CandleProvider over the stored candles
func (db *DB) Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error) {
	return db.GetCandles(ctx, symbol, period)
}

// UpsertCandles inserts or overwrites candles in one transaction
func (db *DB) UpsertCandles(ctx context.Context, candles []models.Candle) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_candles (symbol, period, date, open, high, low, close, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, period, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, c.Symbol, string(c.Period), models.FormatDate(c.Date),
			c.Open, c.High, c.Low, c.Close, now)
		if err != nil {
			return fmt.Errorf("failed to insert candle for %s: %w", c.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// recentCandleDates returns up to the two most recent stored dates, newest first
func (db *DB) recentCandleDates(ctx context.Context, symbol string, period models.Period) ([]time.Time, error) {
	query := `
		SELECT date FROM price_candles
		WHERE symbol = $1 AND period = $2
		ORDER BY date DESC
		LIMIT 2
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, string(period))
	if err != nil {
		return nil, fmt.Errorf("failed to get recent candle dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan candle date: %w", err)
		}
		dates = append(dates, models.Day(d))
	}
	return dates, rows.Err()
}

// FilterNewCandles drops fetched candles already settled in storage. recent holds the
// stored dates newest first. The latest stored candle may have been captured before
// the period closed, so only candles after the second most recent stored date are kept.
func FilterNewCandles(fetched []models.Candle, recent []time.Time) []models.Candle {
	out := make([]models.Candle, 0, len(fetched))
	for _, c := range fetched {
		if len(recent) < 2 || models.Day(c.Date).After(recent[1]) {
			out = append(out, c)
		}
	}
	return out
}

// IngestCandles stores the part of a fetched candle series not yet settled in the
// database and returns how many rows were written.
func (db *DB) IngestCandles(ctx context.Context, symbol string, period models.Period, fetched []models.Candle) (int, error) {
	if len(fetched) == 0 {
		return 0, nil
	}
	recent, err := db.recentCandleDates(ctx, symbol, period)
	if err != nil {
		return 0, err
	}

	fresh := FilterNewCandles(fetched, recent)
	for i := range fresh {
		fresh[i].Symbol = symbol
		fresh[i].Period = period
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := db.UpsertCandles(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// LatestClose returns the close of the most recent stored candle
func (db *DB) LatestClose(ctx context.Context, symbol string, period models.Period) (decimal.Decimal, time.Time, error) {
	query := `
		SELECT date, close FROM price_candles
		WHERE symbol = $1 AND period = $2
		ORDER BY date DESC
		LIMIT 1
	`
	var date time.Time
	var close decimal.Decimal
	err := db.conn.QueryRowContext(ctx, query, symbol, string(period)).Scan(&date, &close)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, time.Time{}, fmt.Errorf("no %s candles for %s: %w", period, symbol, portfolio.ErrPriceDataUnavailable)
	}
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to get latest close: %w", err)
	}
	return close, models.Day(date), nil
}
