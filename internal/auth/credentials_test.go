package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"medstock/m/domain"
	"medstock/m/internal/testutil"
)

func newStore(t *testing.T) (*CredentialStore, *sqlx.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewCredentialStore(db, BcryptHasher{Cost: bcrypt.MinCost}, testutil.Logger()), db
}

func countUsers(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM users`))
	return n
}

func TestRegisterStoresHashedPassword(t *testing.T) {
	store, db := newStore(t)

	user, err := store.Register(context.Background(), "alice_01", "Alice@Example.com", "secret1")
	require.NoError(t, err)

	assert.Positive(t, user.ID)
	assert.Equal(t, "alice_01", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, 1, countUsers(t, db))
}

func TestRegisterValidation(t *testing.T) {
	store, db := newStore(t)

	cases := []struct {
		name                      string
		username, email, password string
	}{
		{"missing username", "", "a@b.co", "secret1"},
		{"missing email", "alice", "", "secret1"},
		{"missing password", "alice", "a@b.co", ""},
		{"short username", "al", "a@b.co", "secret1"},
		{"bad username chars", "al ice", "a@b.co", "secret1"},
		{"long username", "abcdefghijklmnopqrstuvwxyz012345", "a@b.co", "secret1"},
		{"bad email", "alice", "not-an-email", "secret1"},
		{"short password", "alice", "a@b.co", "12345"},
		{"short multibyte password", "alice", "a@b.co", "あいう"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Register(context.Background(), tc.username, tc.email, tc.password)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
	assert.Equal(t, 0, countUsers(t, db))
}

func TestRegisterCountsPasswordCharacters(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Register(context.Background(), "hanako", "hanako@example.com", "あいうえおか")
	assert.NoError(t, err)
}

func TestRegisterSanitizesEmail(t *testing.T) {
	store, _ := newStore(t)

	user, err := store.Register(context.Background(), "bob", "b<o>b@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)
}

func TestRegisterDuplicates(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()
	_, err := store.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, err = store.Register(ctx, "alice2", "alice@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	_, err = store.Register(ctx, "alice", "other@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrDuplicateUsername)

	assert.Equal(t, 1, countUsers(t, db))
}

func TestVerifyCredentials(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	registered, err := store.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	user, err := store.VerifyCredentials(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Equal(t, "alice", user.Username)
}

func TestVerifyCredentialsUniformFailure(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	_, err := store.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, wrongPassword := store.VerifyCredentials(ctx, "alice@example.com", "wrong-pass")
	_, unknownEmail := store.VerifyCredentials(ctx, "nobody@example.com", "secret1")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.ErrorIs(t, wrongPassword, domain.ErrBadCredentials)
	assert.ErrorIs(t, unknownEmail, domain.ErrBadCredentials)
}

func TestVerifyCredentialsValidation(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.VerifyCredentials(context.Background(), "", "secret1")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = store.VerifyCredentials(context.Background(), "nope", "secret1")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRegisterStorageFailureIsGeneric(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	store := NewCredentialStore(sqlx.NewDb(raw, "sqlite"), BcryptHasher{Cost: bcrypt.MinCost}, testutil.Logger())

	mock.ExpectQuery("INSERT INTO users").WillReturnError(errors.New("disk I/O error"))

	_, err = store.Register(context.Background(), "alice", "alice@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.NotContains(t, derr.Message, "disk")
}

func TestUniqueViolationPostgres(t *testing.T) {
	email := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	username := &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
	other := &pgconn.PgError{Code: "23503", ConstraintName: "medicines_user_id_fkey"}

	assert.Equal(t, domain.ErrDuplicateEmail, uniqueViolation(email))
	assert.Equal(t, domain.ErrDuplicateUsername, uniqueViolation(username))
	assert.Nil(t, uniqueViolation(other))
	assert.Equal(t, domain.ErrDuplicateUser, uniqueViolation(errors.New("UNIQUE constraint failed: users.id")))
	assert.Nil(t, uniqueViolation(errors.New("connection refused")))
}
