package google

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pysugar/microblog/internal/config"
	"github.com/pysugar/microblog/internal/db/models"
	"github.com/pysugar/microblog/internal/session"
	"github.com/pysugar/microblog/internal/util"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// UserUpserter maps a Google identity onto a local account.
type UserUpserter interface {
	UpsertGoogleUser(ctx context.Context, subject, email, name string) (*models.User, error)
}

// SessionStarter logs a user in.
type SessionStarter interface {
	Start(w http.ResponseWriter, r *http.Request, userID uint, remember bool) error
}

// UserInfo is the subset of the OpenID Connect userinfo response we use.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// HandleCallback processes the OAuth callback from Google.
func HandleCallback(cfg config.GoogleConfig, users UserUpserter, sessions SessionStarter, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clearFlowCookie(w, stateCookieName)

		if reason := r.URL.Query().Get("error"); reason != "" {
			log.Infow("google sign-in cancelled", "reason", reason)
			session.Flash(w, r, "Google sign-in was cancelled.")
			http.Redirect(w, r, session.LoginPath, http.StatusSeeOther)
			return
		}

		// Verify state token
		cookie, err := r.Cookie(stateCookieName)
		state := r.URL.Query().Get("state")
		if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
			http.Error(w, "Invalid state token", http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code", http.StatusBadRequest)
			return
		}

		oauthConfig := GetOAuthConfig(cfg, callbackURL(cfg, r))
		token, err := oauthConfig.Exchange(r.Context(), code)
		if err != nil {
			log.Warnw("google token exchange failed", "error", err)
			http.Error(w, "Token exchange failed", http.StatusBadGateway)
			return
		}

		info, err := fetchUserInfo(r.Context(), oauthConfig, token, userInfoURL(cfg))
		if err != nil {
			log.Warnw("google userinfo failed", "error", err)
			http.Error(w, "Failed to get user info", http.StatusBadGateway)
			return
		}

		if !info.EmailVerified {
			log.Warnw("google sign-in with unverified email", "email", info.Email)
			session.Flash(w, r, "Your Google email address is not verified.")
			http.Redirect(w, r, session.LoginPath, http.StatusSeeOther)
			return
		}

		user, err := users.UpsertGoogleUser(r.Context(), info.Subject, info.Email, info.Name)
		if err != nil {
			log.Errorw("failed to save google user", "email", info.Email, "error", err)
			http.Error(w, "Failed to save account", http.StatusInternalServerError)
			return
		}
		if err := sessions.Start(w, r, user.ID, false); err != nil {
			log.Errorw("failed to start session", "user_id", user.ID, "error", err)
			http.Error(w, "Failed to start session", http.StatusInternalServerError)
			return
		}

		next := "/"
		if c, err := r.Cookie(nextCookieName); err == nil {
			next = session.SanitizeNext(c.Value)
		}
		clearFlowCookie(w, nextCookieName)
		log.Infow("google sign-in", "user_id", user.ID, "username", user.Username)
		http.Redirect(w, r, next, http.StatusSeeOther)
	}
}

func fetchUserInfo(ctx context.Context, oauthConfig *oauth2.Config, token *oauth2.Token, url string) (*UserInfo, error) {
	client := oauthConfig.Client(ctx, token)
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, util.TruncateBytes(body))
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Subject == "" || info.Email == "" {
		return nil, fmt.Errorf("userinfo is missing sub or email")
	}
	return &info, nil
}
