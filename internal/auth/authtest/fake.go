// Package authtest provides a hand-written identity provider and callback
// recorder for exercising auth.Coordinator in tests.
package authtest

import (
	"context"
	"sync"

	"github.com/savaki/coachme-auth/internal/auth"
)

// Provider is an in-memory auth.IdentityProvider. Launches are answered with
// canned results through Launcher; sign-out and deletion complete on a
// goroutine like a real provider would.
type Provider struct {
	// Result is delivered by Launcher for every launched request.
	Result auth.ProviderResult
	// SignOutErr and DeleteErr are reported on completion when set.
	SignOutErr error
	DeleteErr  error
	// Hold, when non-nil, delays completion of SignOut and DeleteAccount
	// until it is closed.
	Hold chan struct{}

	mu        sync.Mutex
	user      *auth.Identity
	launched  []*auth.AuthRequest
	signOuts  int
	deletions int
}

// New returns a Provider with user signed in (nil for none).
func New(user *auth.Identity) *Provider {
	return &Provider{user: user}
}

func (p *Provider) Option() auth.IdPOption {
	return auth.IdPOption{Type: "fake", Scopes: []string{"openid", "email"}}
}

func (p *Provider) SignOut(ctx context.Context) <-chan error {
	p.mu.Lock()
	p.signOuts++
	p.user = nil
	p.mu.Unlock()
	return p.complete(p.SignOutErr)
}

func (p *Provider) DeleteAccount(ctx context.Context) <-chan error {
	p.mu.Lock()
	p.deletions++
	p.user = nil
	p.mu.Unlock()
	return p.complete(p.DeleteErr)
}

func (p *Provider) CurrentUser(ctx context.Context) (*auth.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user, p.user != nil
}

func (p *Provider) complete(err error) <-chan error {
	done := make(chan error, 1)
	go func() {
		if p.Hold != nil {
			<-p.Hold
		}
		done <- err
		close(done)
	}()
	return done
}

// Launcher returns a LaunchFunc that records each request and hands it, with
// the canned Result, to deliver.
func (p *Provider) Launcher(deliver func(req *auth.AuthRequest, result auth.ProviderResult)) auth.LaunchFunc {
	return func(req *auth.AuthRequest) {
		p.mu.Lock()
		p.launched = append(p.launched, req)
		if p.Result.Status == auth.StatusSuccess && p.Result.Identity != nil {
			p.user = p.Result.Identity
		}
		result := p.Result
		p.mu.Unlock()

		if deliver != nil {
			deliver(req, result)
		}
	}
}

// Launched returns the requests seen by Launcher.
func (p *Provider) Launched() []*auth.AuthRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*auth.AuthRequest(nil), p.launched...)
}

// SignOutCalls returns how many times SignOut was invoked.
func (p *Provider) SignOutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

// DeleteCalls returns how many times DeleteAccount was invoked.
func (p *Provider) DeleteCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deletions
}
