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

const transactionColumns = `
	id, owner, symbol, trade_date, quantity, price, quote_transaction_id,
	generated, source, external_id, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var quoteID sql.NullInt64
	var source, externalID sql.NullString

	err := row.Scan(
		&t.ID, &t.Owner, &t.Symbol, &t.Date, &t.Quantity, &t.Price, &quoteID,
		&t.Generated, &source, &externalID, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Date = models.Day(t.Date)
	if quoteID.Valid {
		id := quoteID.Int64
		t.QuoteTransactionID = &id
	}
	if source.Valid {
		t.Source = source.String
	}
	if externalID.Valid {
		t.ExternalID = externalID.String
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func createTransaction(ctx context.Context, q querier, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			owner, symbol, trade_date, quantity, price, quote_transaction_id,
			generated, source, external_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		t.Owner, t.Symbol, models.FormatDate(t.Date), t.Quantity, t.Price, t.QuoteTransactionID,
		t.Generated, nullString(t.Source), nullString(t.ExternalID), now,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	t.CreatedAt = now
	return nil
}

func getTransaction(ctx context.Context, q querier, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", portfolio.ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func deleteTransaction(ctx context.Context, q querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", portfolio.ErrTransactionNotFound, id)
	}
	return nil
}

// listTransactions returns transactions in chronological order; ties keep insertion order.
func listTransactions(ctx context.Context, q querier, owner, symbol string) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE owner = $1 AND ($2 = '' OR symbol = $2)
		ORDER BY trade_date ASC, id ASC
	`
	rows, err := q.QueryContext(ctx, query, owner, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := []*models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

func transactionExists(ctx context.Context, q querier, source, externalID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE source = $1 AND external_id = $2)`
	var exists bool
	if err := q.QueryRowContext(ctx, query, source, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return exists, nil
}

// ListTransactions returns an owner's transactions, optionally for one symbol
func (db *DB) ListTransactions(ctx context.Context, owner, symbol string) ([]*models.Transaction, error) {
	return listTransactions(ctx, db.conn, owner, symbol)
}

// GetTransaction retrieves a transaction by ID
func (db *DB) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	return getTransaction(ctx, db.conn, id)
}

func (t *ledgerTx) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return createTransaction(ctx, t.tx, tx)
}

func (t *ledgerTx) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	return getTransaction(ctx, t.tx, id)
}

func (t *ledgerTx) DeleteTransaction(ctx context.Context, id int64) error {
	return deleteTransaction(ctx, t.tx, id)
}

func (t *ledgerTx) ListTransactions(ctx context.Context, owner, symbol string) ([]*models.Transaction, error) {
	return listTransactions(ctx, t.tx, owner, symbol)
}

func (t *ledgerTx) TransactionExists(ctx context.Context, source, externalID string) (bool, error) {
	return transactionExists(ctx, t.tx, source, externalID)
}
