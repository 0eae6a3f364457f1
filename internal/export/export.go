// Package export dumps the store as portable INSERT statements, for moving data between
// the SQLite and Postgres backends.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"medstock/m/domain"
)

const storeLayout = "2006-01-02 15:04:05"

// Counts reports how many rows of each table were written.
type Counts struct {
	Users     int
	Medicines int
	History   int
}

func (c Counts) Total() int { return c.Users + c.Medicines + c.History }

// Dump writes users, medicines and history to w, in that order so foreign keys resolve on
// replay. Text values are single-quoted with embedded quotes doubled.
func Dump(ctx context.Context, db *sqlx.DB, w io.Writer, generated time.Time) (Counts, error) {
	var counts Counts
	out := bufio.NewWriter(w)
	fmt.Fprintf(out, "-- medstock data export\n-- Generated on: %s\n\n", generated.UTC().Format(time.RFC3339))

	var users []domain.User
	if err := db.SelectContext(ctx, &users, `SELECT id, username, email, password_hash, created_date FROM users ORDER BY id`); err != nil {
		return counts, fmt.Errorf("export users: %w", err)
	}
	for _, u := range users {
		fmt.Fprintf(out, "INSERT INTO users (id, username, email, password_hash, created_date) VALUES (%d, %s, %s, %s, %s);\n",
			u.ID, quote(u.Username), quote(u.Email), quote(u.PasswordHash), stamp(u.CreatedAt))
	}
	counts.Users = len(users)

	var medicines []domain.Medicine
	if err := db.SelectContext(ctx, &medicines, `SELECT id, user_id, name, quantity, dosage, frequency, notes, added_date, updated_date FROM medicines ORDER BY id`); err != nil {
		return counts, fmt.Errorf("export medicines: %w", err)
	}
	for _, m := range medicines {
		fmt.Fprintf(out, "INSERT INTO medicines (id, user_id, name, quantity, dosage, frequency, notes, added_date, updated_date) VALUES (%d, %d, %s, %d, %s, %s, %s, %s, %s);\n",
			m.ID, m.UserID, quote(m.Name), m.Quantity, quote(m.Dosage), quote(m.Frequency), quote(m.Notes), stamp(m.AddedAt), stamp(m.UpdatedAt))
	}
	counts.Medicines = len(medicines)

	var entries []domain.HistoryEntry
	if err := db.SelectContext(ctx, &entries, `SELECT id, user_id, action, medicine_name, quantity, notes, created_date FROM medicine_history ORDER BY id`); err != nil {
		return counts, fmt.Errorf("export history: %w", err)
	}
	for _, e := range entries {
		fmt.Fprintf(out, "INSERT INTO medicine_history (id, user_id, action, medicine_name, quantity, notes, created_date) VALUES (%d, %d, %s, %s, %d, %s, %s);\n",
			e.ID, e.UserID, quote(string(e.Action)), quote(e.MedicineName), e.Quantity, quote(e.Notes), stamp(e.CreatedAt))
	}
	counts.History = len(entries)

	if err := out.Flush(); err != nil {
		return counts, fmt.Errorf("write export: %w", err)
	}
	return counts, nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func stamp(t domain.Timestamp) string {
	if t.IsZero() {
		return "NULL"
	}
	return quote(t.UTC().Format(storeLayout))
}
