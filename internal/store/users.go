package store

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/microblog/internal/db/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	usernameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)
	validUsername  = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)
)

const maxEmailLength = 120

func validateUsername(username string) error {
	if !validUsername.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// validateEmail accepts a bare address only, no display name.
func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// CreateUser registers a password account.
func (s *Store) CreateUser(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	if err := s.checkAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		LastSeen:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Store) checkAvailable(ctx context.Context, username, email string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUsernameTaken
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrEmailTaken
	}
	return nil
}

// Authenticate checks a username/password pair.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.UserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.HasPassword() {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UpsertGoogleUser finds the account bound to a Google subject, links an
// existing account with the same email, or creates a password-less account.
func (s *Store) UpsertGoogleUser(ctx context.Context, subject, email, name string) (*models.User, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("google subject is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("google_subject = ?", subject).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if existing, err := s.UserByEmail(ctx, email); err == nil {
		existing.GoogleSubject = &subject
		if err := s.db.WithContext(ctx).Model(existing).Update("google_subject", subject).Error; err != nil {
			return nil, fmt.Errorf("link google account: %w", err)
		}
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	username, err := s.freeUsername(ctx, suggestUsername(name, email))
	if err != nil {
		return nil, err
	}
	user = models.User{
		Username:      username,
		Email:         strings.ToLower(strings.TrimSpace(email)),
		GoogleSubject: &subject,
		LastSeen:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create google user: %w", err)
	}
	return &user, nil
}

func suggestUsername(name, email string) string {
	base := usernameUnsafe.ReplaceAllString(strings.ReplaceAll(strings.TrimSpace(name), " ", "."), "")
	if base == "" {
		local, _, _ := strings.Cut(email, "@")
		base = usernameUnsafe.ReplaceAllString(local, "")
	}
	if base == "" {
		base = "user"
	}
	if len(base) > 48 {
		base = base[:48]
	}
	return strings.ToLower(base)
}

func (s *Store) freeUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; i < 1000; i++ {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return "", ErrUsernameTaken
}

// TouchLastSeen records activity for the user.
func (s *Store) TouchLastSeen(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("last_seen", time.Now().UTC()).Error
}

// UpdateProfile changes the username and about text of a user.
func (s *Store) UpdateProfile(ctx context.Context, id uint, username, aboutMe string) error {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? AND id <> ?", username, id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUsernameTaken
	}
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"username": username, "about_me": strings.TrimSpace(aboutMe)}).Error
}
