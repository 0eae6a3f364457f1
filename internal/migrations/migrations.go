package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            created_date DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            quantity INTEGER NOT NULL DEFAULT 0 CHECK (typeof(quantity) = 'integer' AND quantity >= 0),
            dosage TEXT NOT NULL DEFAULT '',
            frequency TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            added_date DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_date DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(user_id) REFERENCES users(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_user ON medicines(user_id, added_date);`,
	`CREATE TABLE IF NOT EXISTS medicine_history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            action TEXT NOT NULL,
            medicine_name TEXT NOT NULL,
            quantity INTEGER NOT NULL,
            notes TEXT NOT NULL DEFAULT '',
            created_date DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(user_id) REFERENCES users(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_history_user ON medicine_history(user_id, created_date);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username TEXT NOT NULL,
            email TEXT NOT NULL,
            password_hash TEXT NOT NULL,
            created_date TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            CONSTRAINT users_username_key UNIQUE (username),
            CONSTRAINT users_email_key UNIQUE (email)
        );`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id),
            name TEXT NOT NULL,
            quantity BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
            dosage TEXT NOT NULL DEFAULT '',
            frequency TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            added_date TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_date TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_user ON medicines(user_id, added_date);`,
	`CREATE TABLE IF NOT EXISTS medicine_history (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id),
            action TEXT NOT NULL,
            medicine_name TEXT NOT NULL,
            quantity BIGINT NOT NULL,
            notes TEXT NOT NULL DEFAULT '',
            created_date TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE INDEX IF NOT EXISTS idx_history_user ON medicine_history(user_id, created_date);`,
}

// Run creates the schema for the users, medicines and medicine_history tables.
func Run(ctx context.Context, db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == "pgx" || db.DriverName() == "postgres" {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
