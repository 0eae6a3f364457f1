package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns passwords into one-way salted digests and checks them.
type Hasher interface {
	Hash(password string) (string, error)
	// Compare returns ErrMismatch when password does not produce hash.
	Compare(hash, password string) error
}

var ErrMismatch = errors.New("password does not match")

// BcryptHasher is the default Hasher.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() BcryptHasher {
	return BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (b BcryptHasher) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (b BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
