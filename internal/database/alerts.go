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

// CreateAlertHistory records a threshold crossing
func (db *DB) CreateAlertHistory(ctx context.Context, h *models.AlertHistory) error {
	query := `
		INSERT INTO alert_history (
			owner, symbol, rule_type, triggered_value, threshold,
			message, notification_sent, triggered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	if h.TriggeredAt.IsZero() {
		h.TriggeredAt = time.Now()
	}

	err := db.conn.QueryRowContext(ctx, query,
		h.Owner, h.Symbol, h.RuleType, h.TriggeredValue, h.Threshold,
		h.Message, h.NotificationSent, h.TriggeredAt,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("failed to create alert history: %w", err)
	}
	return nil
}

// GetAlertHistoryByID retrieves an alert history record by ID
func (db *DB) GetAlertHistoryByID(ctx context.Context, id int64) (*models.AlertHistory, error) {
	query := `
		SELECT id, owner, symbol, rule_type, triggered_value, threshold,
		       message, notification_sent, triggered_at
		FROM alert_history
		WHERE id = $1
	`
	h, err := scanAlert(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", portfolio.ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert history: %w", err)
	}
	return h, nil
}

// GetAlertHistoryByOwner retrieves an owner's most recent alerts
func (db *DB) GetAlertHistoryByOwner(ctx context.Context, owner string, limit int) ([]*models.AlertHistory, error) {
	query := `
		SELECT id, owner, symbol, rule_type, triggered_value, threshold,
		       message, notification_sent, triggered_at
		FROM alert_history
		WHERE owner = $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert history: %w", err)
	}
	defer rows.Close()

	history := []*models.AlertHistory{}
	for rows.Next() {
		h, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert history: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert history: %w", err)
	}
	return history, nil
}

// AlertTriggeredSince reports whether the same rule already fired for (owner, symbol) after since
func (db *DB) AlertTriggeredSince(ctx context.Context, owner, symbol, ruleType string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM alert_history
			WHERE owner = $1 AND symbol = $2 AND rule_type = $3 AND triggered_at > $4
		)
	`
	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, owner, symbol, ruleType, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check alert history: %w", err)
	}
	return exists, nil
}

// MarkNotificationSent flags an alert as delivered
func (db *DB) MarkNotificationSent(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `UPDATE alert_history SET notification_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", portfolio.ErrAlertNotFound, id)
	}
	return nil
}

// DeleteAlertHistoryOlderThan removes alert history older than a specified date
func (db *DB) DeleteAlertHistoryOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM alert_history WHERE triggered_at < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old alert history: %w", err)
	}
	return result.RowsAffected()
}

func scanAlert(row rowScanner) (*models.AlertHistory, error) {
	var h models.AlertHistory
	var message sql.NullString
	err := row.Scan(
		&h.ID, &h.Owner, &h.Symbol, &h.RuleType, &h.TriggeredValue, &h.Threshold,
		&message, &h.NotificationSent, &h.TriggeredAt,
	)
	if err != nil {
		return nil, err
	}
	if message.Valid {
		h.Message = message.String
	}
	return &h, nil
}
