package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/pysugar/microblog/internal/config"
	"github.com/pysugar/microblog/internal/db/models"
	"go.uber.org/zap"
)

type fakeProvider struct {
	server   *httptest.Server
	codes    []string
	userinfo map[string]interface{}
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{userinfo: map[string]interface{}{
		"sub":            "google-123",
		"email":          "susan@example.com",
		"email_verified": true,
		"name":           "Susan Example",
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		p.codes = append(p.codes, r.Form.Get("code"))
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.userinfo)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) config() config.GoogleConfig {
	return config.GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://blog.test/auth/google/callback",
		AuthURL:      p.server.URL + "/auth",
		TokenURL:     p.server.URL + "/token",
		UserInfoURL:  p.server.URL + "/userinfo",
	}
}

type fakeUsers struct {
	subject, email, name string
	err                  error
}

func (f *fakeUsers) UpsertGoogleUser(_ context.Context, subject, email, name string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subject, f.email, f.name = subject, email, name
	return &models.User{ID: 9, Username: "susan.example"}, nil
}

type fakeSessions struct{ started []uint }

func (f *fakeSessions) Start(w http.ResponseWriter, _ *http.Request, userID uint, _ bool) error {
	f.started = append(f.started, userID)
	http.SetCookie(w, &http.Cookie{Name: "microblog_session", Value: "tok"})
	return nil
}

func TestGetOAuthConfigOverrides(t *testing.T) {
	cfg := GetOAuthConfig(config.GoogleConfig{ClientID: "id", TokenURL: "http://fake/token"}, "http://x/cb")
	if cfg.Endpoint.TokenURL != "http://fake/token" {
		t.Errorf("token url override ignored: %s", cfg.Endpoint.TokenURL)
	}
	if !strings.HasPrefix(cfg.Endpoint.AuthURL, "https://accounts.google.com/") {
		t.Errorf("expected google auth url, got %s", cfg.Endpoint.AuthURL)
	}
	if cfg.RedirectURL != "http://x/cb" {
		t.Errorf("unexpected redirect url %s", cfg.RedirectURL)
	}
}

func TestCallbackURLDerivedFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	req.Host = "blog.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := callbackURL(config.GoogleConfig{}, req); got != "https://blog.example.com/auth/google/callback" {
		t.Errorf("unexpected callback url %s", got)
	}
}

func TestHandleLoginRedirectsWithState(t *testing.T) {
	p := newFakeProvider(t)
	rec := httptest.NewRecorder()
	HandleLogin(p.config()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login?next=/explore", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad location: %v", err)
	}
	if !strings.HasPrefix(loc.String(), p.server.URL+"/auth") {
		t.Fatalf("redirected to %s", loc)
	}

	cookies := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c.Value
	}
	if cookies[stateCookieName] == "" || cookies[stateCookieName] != loc.Query().Get("state") {
		t.Errorf("state cookie %q does not match state param %q", cookies[stateCookieName], loc.Query().Get("state"))
	}
	if cookies[nextCookieName] != "/explore" {
		t.Errorf("expected next cookie /explore, got %q", cookies[nextCookieName])
	}
}

func callbackRequest(query string, state string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, CallbackPath+"?"+query, nil)
	if state != "" {
		req.AddCookie(&http.Cookie{Name: stateCookieName, Value: state})
	}
	req.AddCookie(&http.Cookie{Name: nextCookieName, Value: "/user/susan.example"})
	return req
}

func TestHandleCallbackSignsIn(t *testing.T) {
	p := newFakeProvider(t)
	users := &fakeUsers{}
	sessions := &fakeSessions{}
	h := HandleCallback(p.config(), users, sessions, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, callbackRequest("state=abc&code=good-code", "abc"))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d body=%s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/user/susan.example" {
		t.Errorf("unexpected redirect %s", loc)
	}
	if users.subject != "google-123" || users.email != "susan@example.com" || users.name != "Susan Example" {
		t.Errorf("unexpected upsert %+v", users)
	}
	if len(sessions.started) != 1 || sessions.started[0] != 9 {
		t.Errorf("expected a session for user 9, got %v", sessions.started)
	}
}

func TestHandleCallbackRejectsBadState(t *testing.T) {
	p := newFakeProvider(t)
	sessions := &fakeSessions{}
	h := HandleCallback(p.config(), &fakeUsers{}, sessions, zap.NewNop().Sugar())

	for name, req := range map[string]*http.Request{
		"mismatch":       callbackRequest("state=abc&code=good-code", "xyz"),
		"missing cookie": callbackRequest("state=abc&code=good-code", ""),
		"missing param":  callbackRequest("code=good-code", "abc"),
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
	if len(p.codes) != 0 {
		t.Errorf("token endpoint should not be called, got %v", p.codes)
	}
	if len(sessions.started) != 0 {
		t.Errorf("no session should start")
	}
}

func TestHandleCallbackFailures(t *testing.T) {
	p := newFakeProvider(t)

	rec := httptest.NewRecorder()
	HandleCallback(p.config(), &fakeUsers{}, &fakeSessions{}, zap.NewNop().Sugar()).
		ServeHTTP(rec, callbackRequest("state=abc&code=bad-code", "abc"))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("bad code: expected 502, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandleCallback(p.config(), &fakeUsers{err: errors.New("db down")}, &fakeSessions{}, zap.NewNop().Sugar()).
		ServeHTTP(rec, callbackRequest("state=abc&code=good-code", "abc"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("upsert failure: expected 500, got %d", rec.Code)
	}

	delete(p.userinfo, "sub")
	rec = httptest.NewRecorder()
	HandleCallback(p.config(), &fakeUsers{}, &fakeSessions{}, zap.NewNop().Sugar()).
		ServeHTTP(rec, callbackRequest("state=abc&code=good-code", "abc"))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("missing subject: expected 502, got %d", rec.Code)
	}
}

func TestHandleCallbackProviderError(t *testing.T) {
	p := newFakeProvider(t)
	rec := httptest.NewRecorder()
	HandleCallback(p.config(), &fakeUsers{}, &fakeSessions{}, zap.NewNop().Sugar()).
		ServeHTTP(rec, callbackRequest("error=access_denied", ""))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth/login" {
		t.Fatalf("expected 303 to /auth/login, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHandleCallbackRejectsUnverifiedEmail(t *testing.T) {
	p := newFakeProvider(t)
	p.userinfo["sub"] = "attacker"
	p.userinfo["email"] = "victim@example.com"
	p.userinfo["email_verified"] = false
	users := &fakeUsers{}
	sessions := &fakeSessions{}

	rec := httptest.NewRecorder()
	HandleCallback(p.config(), users, sessions, zap.NewNop().Sugar()).
		ServeHTTP(rec, callbackRequest("state=abc&code=good-code", "abc"))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth/login" {
		t.Fatalf("expected 303 to /auth/login, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
	if users.email != "" {
		t.Errorf("unverified identity must not reach the user store, got %q", users.email)
	}
	if len(sessions.started) != 0 {
		t.Errorf("no session should start, got %v", sessions.started)
	}
}
