// Package store is the data access layer for users, follows and posts.
package store

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidUsername    = errors.New("usernames may only contain letters, numbers, dots, dashes and underscores")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidPost        = errors.New("post must be between 1 and 140 characters")
	ErrSelfFollow         = errors.New("cannot follow yourself")
)

// Store wraps the gorm handle. PasswordCost is the bcrypt cost used for new
// password hashes.
type Store struct {
	db           *gorm.DB
	PasswordCost int
}

// New returns a Store using bcrypt.DefaultCost.
func New(db *gorm.DB) *Store {
	return &Store{db: db, PasswordCost: bcrypt.DefaultCost}
}

// DB exposes the underlying handle for health checks and migrations.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Page is one page of a newest-first listing.
type Page[T any] struct {
	Items   []T
	Number  int
	HasNext bool
	HasPrev bool
}

// NextNumber and PrevNumber are used by templates to build pagination links.
func (p Page[T]) NextNumber() int { return p.Number + 1 }
func (p Page[T]) PrevNumber() int { return p.Number - 1 }

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
