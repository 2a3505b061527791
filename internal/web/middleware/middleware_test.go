package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pysugar/microblog/internal/db/models"
	"github.com/pysugar/microblog/internal/session"
	"go.uber.org/zap"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestOptionalBasicAuth(t *testing.T) {
	open := OptionalBasicAuth("Microblog", "")(ok)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("no password: expected 200, got %d", rec.Code)
	}

	guarded := OptionalBasicAuth("Microblog", "s3cret")(ok)
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing credentials: expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate challenge")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("anyone", "s3cret")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid credentials: expected 200, got %d", rec.Code)
	}
}

type touchRecorder struct{ ids []uint }

func (r *touchRecorder) TouchLastSeen(_ context.Context, id uint) error {
	r.ids = append(r.ids, id)
	return nil
}

func TestTrackLastSeen(t *testing.T) {
	rec := &touchRecorder{}
	h := TrackLastSeen(rec, time.Minute, zap.NewNop().Sugar())(ok)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.ids) != 0 {
		t.Fatalf("anonymous request touched %v", rec.ids)
	}

	user := &models.User{ID: 5, LastSeen: time.Now().Add(-time.Hour)}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(session.WithUser(req.Context(), user))
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(rec.ids) != 1 || rec.ids[0] != 5 {
		t.Fatalf("expected exactly one touch for user 5, got %v", rec.ids)
	}
}

func TestClientLimiter(t *testing.T) {
	l := NewClientLimiter(2)
	now := time.Now()
	l.now = func() time.Time { return now }

	if !l.Allow("1.1.1.1") || !l.Allow("1.1.1.1") {
		t.Fatal("burst should allow two requests")
	}
	if l.Allow("1.1.1.1") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(31 * time.Second)
	if !l.Allow("1.1.1.1") {
		t.Fatal("bucket should refill over time")
	}
}

func TestClientLimiterSweepsIdleClients(t *testing.T) {
	l := NewClientLimiter(1)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow("idle")
	now = now.Add(limiterIdleTTL + limiterSweepInterval + time.Second)
	l.Allow("fresh")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, found := l.clients["idle"]; found {
		t.Error("idle client should have been swept")
	}
}

func TestClientLimiterMiddleware(t *testing.T) {
	h := NewClientLimiter(1).Middleware(ok)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first attempt: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second attempt: expected 429, got %d", rec.Code)
	}

	var disabled *ClientLimiter
	if NewClientLimiter(0) != disabled {
		t.Fatal("non-positive rate should disable limiting")
	}
	rec = httptest.NewRecorder()
	disabled.Middleware(ok).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("disabled limiter: expected 200, got %d", rec.Code)
	}
}
