package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/pysugar/microblog/internal/session"
	"go.uber.org/zap"
)

// OptionalBasicAuth guards a route with HTTP basic auth when password is set
// and lets everything through otherwise. The username is ignored.
func OptionalBasicAuth(realm, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, pass, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LastSeenToucher is the store method used by TrackLastSeen.
type LastSeenToucher interface {
	TouchLastSeen(ctx context.Context, id uint) error
}

// TrackLastSeen refreshes the current user's last-seen time, at most once per
// interval.
func TrackLastSeen(st LastSeenToucher, interval time.Duration, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := session.CurrentUser(r.Context()); user != nil && time.Since(user.LastSeen) >= interval {
				if err := st.TouchLastSeen(r.Context(), user.ID); err != nil {
					log.Warnw("failed to update last seen", "user_id", user.ID, "error", err)
				} else {
					user.LastSeen = time.Now().UTC()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
