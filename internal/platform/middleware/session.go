package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"relawan/pkg/requestcontext"
)

// SessionCookieName identifies the browsing session that scopes handoff state.
const SessionCookieName = "relawan_session"

// BrowserSession loads the browsing-session cookie, minting one when absent.
// The cookie has no Expires so it lives as long as the browser session does.
func BrowserSession(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := ""
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil && parsed != uuid.Nil {
					session = parsed.String()
				}
			}
			if session == "" {
				session = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    session,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := requestcontext.WithBrowserSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
