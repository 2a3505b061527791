package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/microblog/internal/db/models"
	"github.com/pysugar/microblog/internal/store"
	"go.uber.org/zap"
)

const (
	CookieName = "microblog_session"
	LoginPath  = "/auth/login"
)

type contextKey string

const userKey contextKey = "currentUser"

// UserLoader resolves the user a session belongs to.
type UserLoader interface {
	UserByID(ctx context.Context, id uint) (*models.User, error)
}

// Manager ties the session store to cookies and request contexts.
type Manager struct {
	store       Store
	users       UserLoader
	ttl         time.Duration
	rememberTTL time.Duration
	log         *zap.SugaredLogger
}

func NewManager(store Store, users UserLoader, ttl, rememberTTL time.Duration, log *zap.SugaredLogger) *Manager {
	return &Manager{
		store:       store,
		users:       users,
		ttl:         ttl,
		rememberTTL: rememberTTL,
		log:         log,
	}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Start creates a session for userID and sets the cookie. Without remember
// the cookie lives for the browser session only.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, userID uint, remember bool) error {
	ttl := m.ttl
	if remember {
		ttl = m.rememberTTL
	}
	if existing, err := r.Cookie(CookieName); err == nil {
		m.store.Delete(r.Context(), existing.Value)
	}

	token, expiresAt, err := m.store.Create(r.Context(), userID, ttl)
	if err != nil {
		return err
	}

	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   requestCookieSecure(r),
	}
	if remember {
		cookie.Expires = expiresAt
		cookie.MaxAge = int(time.Until(expiresAt).Seconds())
	}
	http.SetCookie(w, cookie)
	return nil
}

// End revokes the current session, if any, and clears the cookie.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if err := m.store.Delete(r.Context(), cookie.Value); err != nil {
			m.log.Warnw("failed to delete session", "error", err)
		}
	}
	clearCookie(w, CookieName, requestCookieSecure(r))
}

// Middleware loads the user behind the session cookie into the request
// context. Stale cookies are cleared and the request continues anonymously.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.resolve(r.Context(), cookie.Value)
		if errors.Is(err, ErrNoSession) {
			clearCookie(w, CookieName, requestCookieSecure(r))
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			// The session may still be valid; serve anonymously and keep it.
			m.log.Errorw("failed to resolve session", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (m *Manager) resolve(ctx context.Context, token string) (*models.User, error) {
	userID, err := m.store.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := m.users.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		// The account is gone; drop the orphaned session.
		m.store.Delete(ctx, token)
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	return user, nil
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

// RequireLogin redirects anonymous requests to the login page, carrying the
// original path in "next".
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		target := LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusFound)
	})
}

// SanitizeNext keeps post-login redirects on this site.
func SanitizeNext(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") || strings.HasPrefix(value, "/\\") {
		return "/"
	}
	return value
}

func clearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

func requestCookieSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
