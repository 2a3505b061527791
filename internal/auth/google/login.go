package google

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/pysugar/microblog/internal/config"
	"github.com/pysugar/microblog/internal/session"
	"golang.org/x/oauth2"
)

const (
	stateCookieName = "microblog_oauth_state"
	nextCookieName  = "microblog_oauth_next"
	stateTTL        = 10 * time.Minute
)

func newStateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HandleLogin starts the flow: it remembers a fresh state token and the
// post-login target in short-lived cookies and redirects to the consent page.
func HandleLogin(cfg config.GoogleConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := newStateToken()
		if err != nil {
			http.Error(w, "failed to start sign-in", http.StatusInternalServerError)
			return
		}

		secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
		setFlowCookie(w, stateCookieName, state, secure)
		setFlowCookie(w, nextCookieName, session.SanitizeNext(r.URL.Query().Get("next")), secure)

		oauthConfig := GetOAuthConfig(cfg, callbackURL(cfg, r))
		url := oauthConfig.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	}
}

func setFlowCookie(w http.ResponseWriter, name, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth/google",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

func clearFlowCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
