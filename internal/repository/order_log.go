// Package repository persists the audit trail of completed payments. The
// commerce backend stays authoritative for carts and orders; this log exists
// for reporting and reconciliation.
package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
)

// OrderRecord is one completed payment.
type OrderRecord struct {
	ID           int64
	ChatID       int64
	PizzeriaID   string
	OrderRef     string
	TotalKopecks int64
	Currency     string
	PaidAt       time.Time
}

// OrderLog appends and reads completed payments.
type OrderLog interface {
	Record(ctx context.Context, rec OrderRecord) error
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type orderLog struct {
	db  *sql.DB
	log *slog.Logger
}

// NewOrderLog creates a SQL-backed order log.
func NewOrderLog(db *sql.DB, log *slog.Logger) OrderLog {
	if log == nil {
		log = slog.Default()
	}

	return &orderLog{db: db, log: log}
}

// Record appends one completed payment.
func (r *orderLog) Record(ctx context.Context, rec OrderRecord) error {
	const query = `
		INSERT INTO order_log (chat_id, pizzeria_id, order_ref, total_kopecks, currency, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	paidAt := rec.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(
		ctx,
		query,
		rec.ChatID,
		rec.PizzeriaID,
		rec.OrderRef,
		rec.TotalKopecks,
		rec.Currency,
		paidAt,
	); err != nil {
		r.log.Error("failed to record completed order",
			slog.Int64("chat_id", rec.ChatID), slog.Any("error", err))
		return apperrors.NewDatabaseError(err)
	}

	return nil
}

// CountSince reports how many payments completed after the given time.
func (r *orderLog) CountSince(ctx context.Context, since time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM order_log WHERE paid_at >= $1`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		r.log.Error("failed to count completed orders", slog.Any("error", err))
		return 0, apperrors.NewDatabaseError(err)
	}

	return count, nil
}
