// Package auth resolves caller identity for API requests. Token issuance and
// session management belong to the identity provider; this package only
// verifies bearer tokens and carries the resolved caller through the request
// context.
package auth

import (
	"context"

	"github.com/pairlink/pairlink/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// callerContextKey is the context key for storing the resolved caller.
	callerContextKey contextKey = "caller"
)

// ContextWithCaller adds the resolved caller to the context.
func ContextWithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext retrieves the caller from the context.
// Returns nil if not present.
func CallerFromContext(ctx context.Context) *model.Caller {
	caller, ok := ctx.Value(callerContextKey).(*model.Caller)
	if !ok {
		return nil
	}
	return caller
}

// MustCallerFromContext retrieves the caller from the context.
// Panics if not present (use only when auth middleware has run).
func MustCallerFromContext(ctx context.Context) *model.Caller {
	caller := CallerFromContext(ctx)
	if caller == nil {
		panic("caller not found in context - ensure auth middleware is applied")
	}
	return caller
}

// UIDFromContext is a convenience function to get the caller uid.
// Returns empty string if not authenticated.
func UIDFromContext(ctx context.Context) string {
	caller := CallerFromContext(ctx)
	if caller == nil {
		return ""
	}
	return caller.UID
}
