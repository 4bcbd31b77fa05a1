package gql

import (
	"context"

	"github.com/rs/zerolog"
)

// SignOut resolves the signOut mutation
// Returns the Query type to allow chaining queries after the mutation
func (r *Resolver) SignOut(ctx context.Context) (*Resolver, error) {
	zerolog.Ctx(ctx).Info().Msg("SignOut mutation called")
	if !hasSessionAccess(ctx) {
		return nil, ErrSessionAccess
	}

	done := make(chan struct{})
	r.coordinator.SignOut(ctx, func() { close(done) })
	return r.wait(ctx, done)
}

// DeleteAccount resolves the deleteAccount mutation
// Returns the Query type to allow chaining queries after the mutation
func (r *Resolver) DeleteAccount(ctx context.Context) (*Resolver, error) {
	zerolog.Ctx(ctx).Info().Msg("DeleteAccount mutation called")
	if !hasSessionAccess(ctx) {
		return nil, ErrSessionAccess
	}

	done := make(chan struct{})
	r.coordinator.DeleteAccount(ctx, func() { close(done) })
	return r.wait(ctx, done)
}

func (r *Resolver) wait(ctx context.Context, done <-chan struct{}) (*Resolver, error) {
	select {
	case <-done:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
