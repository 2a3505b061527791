// Package google implements "Sign in with Google" on top of the OAuth2
// authorization code flow.
package google

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pysugar/microblog/internal/config"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

const (
	LoginPath    = "/auth/google/login"
	CallbackPath = "/auth/google/callback"

	DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Scopes requested from Google. Only identity is needed.
var Scopes = []string{"openid", "email", "profile"}

// GetOAuthConfig returns the OAuth2 config for Google authentication. The
// endpoint overrides in cfg replace Google's endpoints when set.
func GetOAuthConfig(cfg config.GoogleConfig, redirectURL string) *oauth2.Config {
	endpoint := googleOAuth.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

// callbackURL is the configured redirect URL or, when unset, one derived
// from the incoming request.
func callbackURL(cfg config.GoogleConfig, r *http.Request) string {
	if cfg.RedirectURL != "" {
		return cfg.RedirectURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, CallbackPath)
}

func userInfoURL(cfg config.GoogleConfig) string {
	if cfg.UserInfoURL != "" {
		return cfg.UserInfoURL
	}
	return DefaultUserInfoURL
}
