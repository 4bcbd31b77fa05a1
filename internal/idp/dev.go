package idp

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/auth"
)

// DevProvider signs everyone in as a fixed email without contacting an
// identity provider. This should ONLY be used for local development.
type DevProvider struct {
	email       string
	callbackURL string
	directory   Directory
	flows       *flows
	session     session
}

var _ Flow = (*DevProvider)(nil)

// NewDevProvider returns a DevProvider that redirects straight back to
// callbackURL. An empty email makes every sign-in a success without an
// email, which the coordinator rejects.
func NewDevProvider(email, callbackURL string, directory Directory) *DevProvider {
	if directory == nil {
		directory = NewMemoryDirectory()
	}
	return &DevProvider{
		email:       email,
		callbackURL: callbackURL,
		directory:   directory,
		flows:       newFlows(DefaultFlowTTL),
	}
}

// WithFlowTTL sets how long a launched request waits for its callback.
func (p *DevProvider) WithFlowTTL(ttl time.Duration) *DevProvider {
	p.flows = newFlows(ttl)
	return p
}

func (p *DevProvider) FlowTTL() time.Duration {
	return p.flows.ttl
}

func (p *DevProvider) Option() auth.IdPOption {
	return auth.IdPOption{Type: "dev"}
}

func (p *DevProvider) AuthCodeURL(req *auth.AuthRequest) (string, error) {
	if req == nil {
		return "", auth.ErrNilRequest
	}

	u, err := url.Parse(p.callbackURL)
	if err != nil {
		return "", err
	}
	p.flows.register(req.ID, "")

	q := u.Query()
	q.Set("state", req.ID)
	q.Set("code", "dev")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *DevProvider) HandleCallback(ctx context.Context, query url.Values) (string, auth.ProviderResult) {
	state := query.Get("state")
	if state == "" {
		return "", auth.ProviderResult{Status: auth.StatusError, Err: ErrMissingState}
	}
	if result, ok := callbackError(query); ok {
		p.flows.take(state)
		return state, result
	}
	if _, ok := p.flows.take(state); !ok {
		return state, auth.ProviderResult{Status: auth.StatusError, Err: ErrUnknownFlow}
	}

	identity := &auth.Identity{Subject: "dev|" + p.email, Email: p.email, Provider: "dev"}
	if p.email == "" {
		return state, auth.ProviderResult{Status: auth.StatusSuccess, Identity: identity}
	}

	if err := p.directory.Put(ctx, Account{
		Subject:      identity.Subject,
		Email:        identity.Email,
		Provider:     identity.Provider,
		LastSignInAt: time.Now(),
	}); err != nil {
		return state, auth.ProviderResult{Status: auth.StatusError, Err: err}
	}

	zerolog.Ctx(ctx).Debug().Str("email", p.email).Msg("⚠️  Dev provider sign-in")
	p.session.set(identity)
	return state, auth.ProviderResult{Status: auth.StatusSuccess, Identity: identity}
}

func (p *DevProvider) SignOut(ctx context.Context) <-chan error {
	return completeAsync(func() error {
		p.session.clear()
		return nil
	})
}

func (p *DevProvider) DeleteAccount(ctx context.Context) <-chan error {
	return deleteAccount(ctx, &p.session, p.directory)
}

func (p *DevProvider) CurrentUser(ctx context.Context) (*auth.Identity, bool) {
	return p.session.current()
}

func (p *DevProvider) LogoutURL(returnTo string) string {
	return returnTo
}
