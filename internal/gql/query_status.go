package gql

import (
	"context"
	"time"
)

// Status is the GraphQL view of the provider session
type Status struct {
	signedIn  bool
	provider  string
	email     *string
	name      *string
	checkedAt time.Time
}

func (s *Status) SignedIn() bool {
	return s.signedIn
}

func (s *Status) Provider() string {
	return s.provider
}

func (s *Status) Email() *string {
	return s.email
}

func (s *Status) Name() *string {
	return s.name
}

func (s *Status) CheckedAt() DateTime {
	return DateTime{Time: s.checkedAt}
}

// Status resolves the status query. Callers without session access see a
// signed-out status.
func (r *Resolver) Status(ctx context.Context) *Status {
	provider := r.coordinator.Provider()
	status := &Status{
		provider:  provider.Option().Type,
		checkedAt: time.Now(),
	}

	if !hasSessionAccess(ctx) {
		return status
	}
	if user, ok := provider.CurrentUser(ctx); ok {
		status.signedIn = true
		status.email = &user.Email
		if user.Name != "" {
			status.name = &user.Name
		}
	}
	return status
}
