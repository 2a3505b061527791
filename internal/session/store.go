// Package session implements server-side login sessions referenced by an
// opaque cookie token.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/microblog/internal/config"
	"github.com/pysugar/microblog/internal/db/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrNoSession means the token is unknown, revoked or expired.
var ErrNoSession = errors.New("no session")

// Store persists sessions. Tokens handed out by Create are only ever stored
// hashed.
type Store interface {
	Create(ctx context.Context, userID uint, ttl time.Duration) (token string, expiresAt time.Time, err error)
	Lookup(ctx context.Context, token string) (uint, error)
	Delete(ctx context.Context, token string) error
	// DeleteExpired purges expired sessions for backends without native TTLs.
	DeleteExpired(ctx context.Context) (int64, error)
	Close() error
}

// NewStore returns the backend selected by cfg.SessionStore.
func NewStore(cfg *config.Config, db *gorm.DB) (Store, error) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return NewRedisStore(redis.NewClient(opts)), nil
	default:
		return NewGormStore(db), nil
	}
}

func generateToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GormStore keeps sessions in the application database.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Create(ctx context.Context, userID uint, ttl time.Duration) (string, time.Time, error) {
	token, err := generateToken()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now().UTC()
	row := models.Session{
		ID:        hashToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}
	return token, row.ExpiresAt, nil
}

func (s *GormStore) Lookup(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, ErrNoSession
	}
	var row models.Session
	err := s.db.WithContext(ctx).Where("id = ?", hashToken(token)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, fmt.Errorf("lookup session: %w", err)
	}
	if !s.now().UTC().Before(row.ExpiresAt) {
		s.db.WithContext(ctx).Delete(&row)
		return 0, ErrNoSession
	}
	return row.UserID, nil
}

func (s *GormStore) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("id = ?", hashToken(token)).Delete(&models.Session{}).Error
}

func (s *GormStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) Close() error { return nil }

const redisKeyPrefix = "microblog:session:"

// RedisStore keeps sessions in Redis and lets key expiry do the cleanup.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, userID uint, ttl time.Duration) (string, time.Time, error) {
	token, err := generateToken()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := time.Now().UTC().Add(ttl)
	if err := s.client.Set(ctx, redisKeyPrefix+hashToken(token), userID, ttl).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}
	return token, expiresAt, nil
}

func (s *RedisStore) Lookup(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, ErrNoSession
	}
	id, err := s.client.Get(ctx, redisKeyPrefix+hashToken(token)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, fmt.Errorf("lookup session: %w", err)
	}
	return uint(id), nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKeyPrefix+hashToken(token)).Err()
}

func (s *RedisStore) DeleteExpired(context.Context) (int64, error) { return 0, nil }

func (s *RedisStore) Close() error {
	return s.client.Close()
}
