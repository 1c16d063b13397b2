package testutil

import (
	"context"
	"net/http"
	"time"

	"relawan/pkg/requestcontext"
)

// WithBrowserSession adds a browsing-session key to the request context.
// This simulates what the session middleware does for returning browsers.
func WithBrowserSession(req *http.Request, session string) *http.Request {
	return req.WithContext(requestcontext.WithBrowserSession(req.Context(), session))
}

// WithRequestTime pins the request time seen by handlers.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
