// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the values; services read them without importing net/http.
//
//	requestID := requestcontext.RequestID(ctx)
//	session := requestcontext.BrowserSession(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey      struct{}
	browserSessionKey struct{}
	requestTimeKey    struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID      = requestIDKey{}
	ContextKeyBrowserSession = browserSessionKey{}
	ContextKeyRequestTime    = requestTimeKey{}
)

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// BrowserSession retrieves the browsing-session key that scopes ephemeral
// handoff state. Returns "" when the request carried none.
func BrowserSession(ctx context.Context) string {
	if s, ok := ctx.Value(ContextKeyBrowserSession).(string); ok {
		return s
	}
	return ""
}

// WithBrowserSession injects the browsing-session key into the context.
func WithBrowserSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, ContextKeyBrowserSession, session)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
