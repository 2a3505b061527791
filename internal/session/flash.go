package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookieName = "microblog_flash"

// Flash queues a one-shot message shown on the next rendered page. Messages
// already queued on the incoming request are kept.
func Flash(w http.ResponseWriter, r *http.Request, message string) {
	messages := append(readFlashes(r), message)
	raw, err := json.Marshal(messages)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   requestCookieSecure(r),
	})
}

// PopFlashes returns the queued messages and clears them.
func PopFlashes(w http.ResponseWriter, r *http.Request) []string {
	messages := readFlashes(r)
	if len(messages) > 0 {
		clearCookie(w, flashCookieName, requestCookieSecure(r))
	}
	return messages
}

func readFlashes(r *http.Request) []string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var messages []string
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil
	}
	return messages
}
