package api

import (
	"context"

	"louyass/core"
)

// contextKey is a private type to prevent context key collisions across packages.
// Only this package can create these keys, so no other code can inject an
// authenticated user into a request context.
type contextKey string

const (
	// ContextKeyUser stores the authenticated user (*core.User)
	ContextKeyUser contextKey = "user"

	// ContextKeyClaims stores the validated token claims (*Claims)
	ContextKeyClaims contextKey = "claims"

	// ContextKeyRequestID stores the unique request identifier (string)
	ContextKeyRequestID contextKey = "request_id"
)

// WithUser returns a context carrying the authenticated user
func WithUser(ctx context.Context, u *core.User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, u)
}

// GetUser extracts the authenticated user from the context.
// Returns nil and false on public routes.
func GetUser(ctx context.Context) (*core.User, bool) {
	u, ok := ctx.Value(ContextKeyUser).(*core.User)
	return u, ok && u != nil
}

// WithClaims returns a context carrying the token claims
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, c)
}

// GetClaims extracts the token claims from the context
func GetClaims(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ContextKeyClaims).(*Claims)
	return c, ok && c != nil
}

// WithRequestID returns a context carrying the request id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}

// GetRequestID extracts the request id, or "" when none was assigned
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}
