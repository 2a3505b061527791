package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pysugar/microblog/internal/config"
	"github.com/pysugar/microblog/internal/db"
	"github.com/pysugar/microblog/internal/db/models"
	"github.com/pysugar/microblog/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open("sqlite://", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

type fakeUsers map[uint]*models.User

func (f fakeUsers) UserByID(_ context.Context, id uint) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

type failingUsers struct{ err error }

func (f failingUsers) UserByID(context.Context, uint) (*models.User, error) {
	return nil, f.err
}

func TestGormStoreLifecycle(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	ctx := context.Background()

	token, expiresAt, err := store.Create(ctx, 7, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	var row models.Session
	require.NoError(t, store.db.First(&row).Error)
	assert.NotEqual(t, token, row.ID, "raw token must not be stored")
	assert.Equal(t, hashToken(token), row.ID)

	userID, err := store.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)

	_, err = store.Lookup(ctx, "bogus")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = store.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Delete(ctx, token))
	_, err = store.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGormStoreExpiry(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	short, _, err := store.Create(ctx, 1, time.Minute)
	require.NoError(t, err)
	_, _, err = store.Create(ctx, 2, time.Hour)
	require.NoError(t, err)
	gone, _, err := store.Create(ctx, 3, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	_, err = store.Lookup(ctx, short)
	assert.ErrorIs(t, err, ErrNoSession)

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "lookup already removed one expired row")

	_, err = store.Lookup(ctx, gone)
	assert.ErrorIs(t, err, ErrNoSession)

	var remaining int64
	store.db.Model(&models.Session{}).Count(&remaining)
	assert.Equal(t, int64(1), remaining)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	token, _, err := store.Create(ctx, 42, time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisKeyPrefix+hashToken(token)))

	userID, err := store.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), userID)

	mr.FastForward(2 * time.Minute)
	_, err = store.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrNoSession)

	token, _, err = store.Create(ctx, 42, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, token))
	_, err = store.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrNoSession)

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	cfg := config.Testing()
	s, err := NewStore(cfg, newTestDB(t))
	require.NoError(t, err)
	assert.IsType(t, &GormStore{}, s)

	mr := miniredis.RunT(t)
	cfg.SessionStore = config.SessionStoreRedis
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	s, err = NewStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	cfg.RedisURL = "::bad::"
	_, err = NewStore(cfg, nil)
	assert.Error(t, err)
}

func newTestManager(t *testing.T, users fakeUsers) *Manager {
	return NewManager(NewGormStore(newTestDB(t)), users, time.Hour, 24*time.Hour, zap.NewNop().Sugar())
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("%s cookie not set", CookieName)
	return nil
}

func TestManagerStartAndMiddleware(t *testing.T) {
	susan := &models.User{ID: 1, Username: "susan"}
	m := newTestManager(t, fakeUsers{1: susan})

	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil), 1, false))
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Zero(t, cookie.MaxAge, "non-remembered sessions use browser-session cookies")

	var seen *models.User
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CurrentUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, "susan", seen.Username)

	seen = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, seen)
}

func TestManagerRememberSetsPersistentCookie(t *testing.T) {
	m := newTestManager(t, fakeUsers{})
	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil), 1, true))
	cookie := sessionCookie(t, rec)

	remember := int((24 * time.Hour).Seconds())
	assert.InDelta(t, remember, cookie.MaxAge, 5)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), cookie.Expires, time.Minute)

	var row models.Session
	require.NoError(t, m.Store().(*GormStore).db.Where("id = ?", hashToken(cookie.Value)).First(&row).Error)
	assert.WithinDuration(t, cookie.Expires, row.ExpiresAt, 2*time.Second)
}

func TestCookiesSecureBehindTLSProxy(t *testing.T) {
	m := newTestManager(t, fakeUsers{1: {ID: 1}})
	https := func(method, target string) *http.Request {
		req := httptest.NewRequest(method, target, nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		return req
	}

	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, https(http.MethodPost, "/auth/login"), 1, false))
	loginCookie := sessionCookie(t, rec)
	assert.True(t, loginCookie.Secure)

	rec = httptest.NewRecorder()
	Flash(rec, https(http.MethodPost, "/"), "saved")
	flashes := rec.Result().Cookies()
	require.Len(t, flashes, 1)
	assert.True(t, flashes[0].Secure)

	req := https(http.MethodPost, "/auth/logout")
	req.AddCookie(loginCookie)
	rec = httptest.NewRecorder()
	m.End(rec, req)
	cleared := sessionCookie(t, rec)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.True(t, cleared.Secure)

	rec = httptest.NewRecorder()
	require.NoError(t, m.Start(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil), 1, false))
	assert.False(t, sessionCookie(t, rec).Secure, "plain http keeps cookies usable")
}

func TestManagerKeepsSessionWhenUserLookupFails(t *testing.T) {
	m := NewManager(NewGormStore(newTestDB(t)), failingUsers{errors.New("database is locked")},
		time.Hour, 24*time.Hour, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil), 1, false))
	cookie := sessionCookie(t, rec)

	var seen *models.User
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CurrentUser(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Nil(t, seen, "request is served anonymously")
	assert.Empty(t, rec.Result().Cookies(), "cookie must not be cleared")
	userID, err := m.Store().Lookup(context.Background(), cookie.Value)
	require.NoError(t, err, "session must survive a transient failure")
	assert.Equal(t, uint(1), userID)
}

func TestManagerStaleCookieIsCleared(t *testing.T) {
	m := newTestManager(t, fakeUsers{})
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Nil(t, CurrentUser(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "stale"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	cookie := sessionCookie(t, rec)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.Empty(t, cookie.Value)
}

func TestManagerOrphanedSession(t *testing.T) {
	m := newTestManager(t, fakeUsers{})
	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, httptest.NewRequest(http.MethodPost, "/", nil), 99, false))
	token := sessionCookie(t, rec).Value

	_, err := m.resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = m.Store().Lookup(context.Background(), token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManagerEnd(t *testing.T) {
	m := newTestManager(t, fakeUsers{1: {ID: 1}})
	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(rec, httptest.NewRequest(http.MethodPost, "/", nil), 1, false))
	cookie := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	m.End(rec, req)

	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
	_, err := m.Store().Lookup(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRequireLogin(t *testing.T) {
	h := RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/susan?page=2", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(loc, "/auth/login?next="), loc)
	assert.Contains(t, loc, "%2Fuser%2Fsusan%3Fpage%3D2")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &models.User{ID: 1}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSanitizeNext(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/explore":             "/explore",
		"/user/a?page=2":       "/user/a?page=2",
		"https://evil.example": "/",
		"//evil.example/path":  "/",
		"/\\evil.example":      "/",
		"javascript:alert(1)":  "/",
		"  /index  ":           "/index",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeNext(in), "SanitizeNext(%q)", in)
	}
}

func TestFlashRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	Flash(rec, httptest.NewRequest(http.MethodGet, "/", nil), "Congratulations, you are now registered!")

	var flashCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookieName {
			flashCookie = c
		}
	}
	require.NotNil(t, flashCookie)

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.AddCookie(flashCookie)
	rec = httptest.NewRecorder()
	msgs := PopFlashes(rec, req)
	assert.Equal(t, []string{"Congratulations, you are now registered!"}, msgs)

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	assert.Empty(t, PopFlashes(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)))
}
