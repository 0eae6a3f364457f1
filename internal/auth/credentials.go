package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"medstock/m/domain"
)

// CredentialStore persists users and checks their passwords.
type CredentialStore struct {
	db     *sqlx.DB
	hasher Hasher
	log    logrus.FieldLogger

	dummyOnce sync.Once
	dummy     string
}

func NewCredentialStore(db *sqlx.DB, hasher Hasher, log logrus.FieldLogger) *CredentialStore {
	return &CredentialStore{db: db, hasher: hasher, log: log}
}

// Register validates and stores a new user. Duplicate email and duplicate username are
// reported as distinct errors.
func (s *CredentialStore) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	if username == "" || email == "" || password == "" {
		return nil, domain.Validation("username, email and password are required")
	}
	if !ValidUsername(username) {
		return nil, domain.Validation("username must be 3-30 characters of letters, digits and underscores")
	}
	if !ValidEmail(email) {
		return nil, domain.Validation("please enter a valid email address")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, domain.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	user := &domain.User{
		Username: Sanitize(username),
		Email:    normalizeEmail(email),
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hashed

	query := s.db.Rebind(`INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?) RETURNING id, created_date`)
	err = s.db.QueryRowxContext(ctx, query, user.Username, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			s.log.WithField("username", user.Username).Info("registration rejected: ", dup.Code)
			return nil, dup
		}
		return nil, domain.Storage(fmt.Errorf("failed to create user: %w", err))
	}

	s.log.WithField("user_id", user.ID).Info("user registered")
	return user, nil
}

// VerifyCredentials looks a user up by email and checks the password. Unknown email and
// wrong password produce the same error.
func (s *CredentialStore) VerifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, domain.Validation("email and password are required")
	}
	if !ValidEmail(email) {
		return nil, domain.Validation("please enter a valid email address")
	}

	var user domain.User
	query := s.db.Rebind(`SELECT id, username, email, password_hash, created_date FROM users WHERE email = ?`)
	err := s.db.GetContext(ctx, &user, query, normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		// Burn a comparison so unknown emails cost about as much as wrong passwords.
		_ = s.hasher.Compare(s.dummyHash(), password)
		return nil, domain.ErrBadCredentials
	}
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("failed to find user: %w", err))
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrMismatch) {
			s.log.WithError(err).WithField("user_id", user.ID).Warn("stored password hash is unusable")
		}
		return nil, domain.ErrBadCredentials
	}
	return &user, nil
}

func (s *CredentialStore) dummyHash() string {
	s.dummyOnce.Do(func() {
		s.dummy, _ = s.hasher.Hash("timing-equalisation-only")
	})
	return s.dummy
}

// uniqueViolation translates a store constraint failure into the matching conflict error,
// or returns nil when err is not a uniqueness violation.
func uniqueViolation(err error) *domain.Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return nil
		}
		return conflictFor(pgErr.ConstraintName)
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key") {
		return conflictFor(msg)
	}
	return nil
}

func conflictFor(detail string) *domain.Error {
	switch {
	case strings.Contains(detail, "users.email"), strings.Contains(detail, "users_email"):
		return domain.ErrDuplicateEmail
	case strings.Contains(detail, "users.username"), strings.Contains(detail, "users_username"):
		return domain.ErrDuplicateUsername
	default:
		return domain.ErrDuplicateUser
	}
}
