package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"medstock/m/domain"
)

const medicineColumns = `id, user_id, name, quantity, dosage, frequency, notes, added_date, updated_date`

// MaxStock caps both a single added amount and the stored quantity of one medicine.
const MaxStock int64 = 1_000_000

// NewMedicine is the input to Ledger.Add. Quantity is a pointer so that an absent value can
// be told apart from zero.
type NewMedicine struct {
	Name      string
	Quantity  *int64
	Dosage    string
	Frequency string
	Notes     string
}

// Ledger owns medicine records. Every lookup and mutation is filtered by owner id, so a
// record belonging to someone else is indistinguishable from a missing one.
//
// Each mutation is followed by a history append. The append is best-effort: a failure is
// logged and never reverts the stock change or fails the call.
type Ledger struct {
	db             *sqlx.DB
	history        Appender
	log            logrus.FieldLogger
	auditDeletions bool
}

type Option func(*Ledger)

// WithDeletionAudit makes Remove append a DELETED history entry.
func WithDeletionAudit(enabled bool) Option {
	return func(l *Ledger) { l.auditDeletions = enabled }
}

func NewLedger(db *sqlx.DB, history Appender, log logrus.FieldLogger, opts ...Option) *Ledger {
	l := &Ledger{db: db, history: history, log: log}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List returns all of the owner's medicines, most recently added first.
func (l *Ledger) List(ctx context.Context, ownerID int64) ([]domain.Medicine, error) {
	query := l.db.Rebind(`SELECT ` + medicineColumns + ` FROM medicines WHERE user_id = ? ORDER BY added_date DESC, id DESC`)
	medicines := []domain.Medicine{}
	if err := l.db.SelectContext(ctx, &medicines, query, ownerID); err != nil {
		return nil, domain.Storage(fmt.Errorf("failed to list medicines: %w", err))
	}
	return medicines, nil
}

// Add creates a medicine and records a PRESCRIBED entry for the initial quantity.
func (l *Ledger) Add(ctx context.Context, ownerID int64, in NewMedicine) (*domain.Medicine, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Quantity == nil || *in.Quantity == 0 {
		return nil, domain.Validation("medicine name and quantity are required")
	}
	if *in.Quantity < 0 {
		return nil, domain.Validation("quantity cannot be negative")
	}
	if *in.Quantity > MaxStock {
		return nil, domain.Validation(fmt.Sprintf("quantity cannot exceed %d", MaxStock))
	}

	var med domain.Medicine
	query := l.db.Rebind(`INSERT INTO medicines (user_id, name, quantity, dosage, frequency, notes)
                VALUES (?, ?, ?, ?, ?, ?)
                RETURNING ` + medicineColumns)
	err := l.db.GetContext(ctx, &med, query, ownerID, name, *in.Quantity, in.Dosage, in.Frequency, in.Notes)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("failed to add medicine: %w", err))
	}

	l.record(ctx, ownerID, med.ID, domain.ActionPrescribed, med.Name, med.Quantity, joinNonEmpty(", ", in.Dosage, in.Frequency))
	return &med, nil
}

// Restock adds quantity units to an existing medicine. The resulting stock may not pass
// MaxStock; the bound is part of the UPDATE predicate so the column never overflows.
func (l *Ledger) Restock(ctx context.Context, ownerID, medicineID, quantity int64, notes string) (*domain.Medicine, error) {
	if quantity <= 0 {
		return nil, domain.Validation("quantity to add must be a positive number")
	}
	if quantity > MaxStock {
		return nil, domain.Validation(fmt.Sprintf("quantity to add cannot exceed %d", MaxStock))
	}
	current, err := l.get(ctx, ownerID, medicineID)
	if err != nil {
		return nil, err
	}

	var med domain.Medicine
	query := l.db.Rebind(`UPDATE medicines
                SET quantity = quantity + ?, updated_date = CURRENT_TIMESTAMP
                WHERE id = ? AND user_id = ? AND quantity <= ?
                RETURNING ` + medicineColumns)
	err = l.db.GetContext(ctx, &med, query, quantity, medicineID, ownerID, MaxStock-quantity)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the row vanished or the bound rejected the update.
		if _, err := l.get(ctx, ownerID, medicineID); err != nil {
			return nil, err
		}
		return nil, domain.Validation(fmt.Sprintf("stock cannot exceed %d", MaxStock))
	}
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("failed to restock medicine %d: %w", medicineID, err))
	}

	historyNotes := "restock"
	if notes = strings.TrimSpace(notes); notes != "" {
		historyNotes += " - " + notes
	}
	l.record(ctx, ownerID, medicineID, domain.ActionRestocked, current.Name, quantity, historyNotes)
	return &med, nil
}

// Consume takes one unit. The decrement is a single conditional UPDATE, so concurrent calls
// can never drive quantity below zero.
func (l *Ledger) Consume(ctx context.Context, ownerID, medicineID int64) (*domain.Medicine, error) {
	current, err := l.get(ctx, ownerID, medicineID)
	if err != nil {
		return nil, err
	}
	if current.Quantity <= 0 {
		return nil, domain.ErrEmptyStock
	}

	var med domain.Medicine
	query := l.db.Rebind(`UPDATE medicines
                SET quantity = quantity - 1, updated_date = CURRENT_TIMESTAMP
                WHERE id = ? AND user_id = ? AND quantity > 0
                RETURNING ` + medicineColumns)
	err = l.db.GetContext(ctx, &med, query, medicineID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race: either the last unit went to another caller or the row was deleted.
		if _, lookupErr := l.get(ctx, ownerID, medicineID); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, domain.ErrEmptyStock
	}
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("failed to consume medicine %d: %w", medicineID, err))
	}

	l.record(ctx, ownerID, medicineID, domain.ActionConsumed, current.Name, 1, "")
	return &med, nil
}

// Remove hard-deletes a medicine and returns its name. History entries are kept.
func (l *Ledger) Remove(ctx context.Context, ownerID, medicineID int64) (string, error) {
	current, err := l.get(ctx, ownerID, medicineID)
	if err != nil {
		return "", err
	}

	query := l.db.Rebind(`DELETE FROM medicines WHERE id = ? AND user_id = ?`)
	res, err := l.db.ExecContext(ctx, query, medicineID, ownerID)
	if err != nil {
		return "", domain.Storage(fmt.Errorf("failed to delete medicine %d: %w", medicineID, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", domain.ErrNotFound
	}

	if l.auditDeletions {
		l.record(ctx, ownerID, medicineID, domain.ActionDeleted, current.Name, current.Quantity, "")
	}
	return current.Name, nil
}

// get is the owner-scoped lookup shared by every id-addressed operation.
func (l *Ledger) get(ctx context.Context, ownerID, medicineID int64) (*domain.Medicine, error) {
	var med domain.Medicine
	query := l.db.Rebind(`SELECT ` + medicineColumns + ` FROM medicines WHERE id = ? AND user_id = ?`)
	err := l.db.GetContext(ctx, &med, query, medicineID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("failed to load medicine %d: %w", medicineID, err))
	}
	return &med, nil
}

func (l *Ledger) record(ctx context.Context, ownerID, medicineID int64, action domain.Action, name string, quantity int64, notes string) {
	if err := l.history.Append(ctx, ownerID, action, name, quantity, notes); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"user_id":     ownerID,
			"medicine_id": medicineID,
			"action":      action,
		}).Warn("history append failed")
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
