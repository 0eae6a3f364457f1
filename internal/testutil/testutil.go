// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"io"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"medstock/m/internal/database"
	"medstock/m/internal/migrations"
)

// NewDB returns a migrated in-memory SQLite database closed with the test.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(context.Background(), db))
	return db
}

// CreateUser inserts a user row directly and returns its id.
func CreateUser(t testing.TB, db *sqlx.DB, username, email string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(`INSERT INTO users (username, email, password_hash) VALUES (?, ?, 'x') RETURNING id`, username, email).Scan(&id)
	require.NoError(t, err)
	return id
}

// Logger discards output.
func Logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
