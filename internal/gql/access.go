package gql

import (
	"context"
	"errors"
)

// ErrSessionAccess is returned by mutations when the caller does not own the
// signed-in session.
var ErrSessionAccess = errors.New("signed-in session belongs to another browser")

type sessionAccessKey struct{}

// WithSessionAccess records whether the caller may see and change the
// signed-in session. Without it resolvers deny access.
func WithSessionAccess(ctx context.Context, allowed bool) context.Context {
	return context.WithValue(ctx, sessionAccessKey{}, allowed)
}

func hasSessionAccess(ctx context.Context) bool {
	allowed, _ := ctx.Value(sessionAccessKey{}).(bool)
	return allowed
}
