package inventory

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"medstock/m/domain"
)

// HistoryLimit caps how many entries HistoryLog.List returns.
const HistoryLimit = 50

// Appender records an audit entry for an inventory mutation.
type Appender interface {
	Append(ctx context.Context, ownerID int64, action domain.Action, medicineName string, quantity int64, notes string) error
}

// HistoryLog is the append-only, owner-scoped audit trail. Entries are never updated or deleted.
type HistoryLog struct {
	db *sqlx.DB
}

func NewHistoryLog(db *sqlx.DB) *HistoryLog {
	return &HistoryLog{db: db}
}

func (h *HistoryLog) Append(ctx context.Context, ownerID int64, action domain.Action, medicineName string, quantity int64, notes string) error {
	query := h.db.Rebind(`INSERT INTO medicine_history (user_id, action, medicine_name, quantity, notes) VALUES (?, ?, ?, ?, ?)`)
	if _, err := h.db.ExecContext(ctx, query, ownerID, string(action), medicineName, quantity, notes); err != nil {
		return fmt.Errorf("failed to append %s history: %w", action, err)
	}
	return nil
}

// List returns the caller's most recent entries, newest first.
func (h *HistoryLog) List(ctx context.Context, ownerID int64) ([]domain.HistoryEntry, error) {
	query := h.db.Rebind(`SELECT id, user_id, action, medicine_name, quantity, notes, created_date
                FROM medicine_history
                WHERE user_id = ?
                ORDER BY created_date DESC, id DESC
                LIMIT ?`)
	entries := []domain.HistoryEntry{}
	if err := h.db.SelectContext(ctx, &entries, query, ownerID, HistoryLimit); err != nil {
		return nil, domain.Storage(fmt.Errorf("failed to list history: %w", err))
	}
	return entries, nil
}
