package idp

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/savaki/coachme-auth/internal/auth"
)

const DefaultFlowTTL = 10 * time.Minute

var (
	ErrUnknownFlow  = errors.New("unknown or expired sign-in flow")
	ErrMissingCode  = errors.New("authorization code not found in callback")
	ErrNotSignedIn  = errors.New("no user is signed in")
	ErrNoIDToken    = errors.New("no id_token in token response")
	ErrMissingState = errors.New("state not found in callback")
)

// Flow is an identity provider that runs its interactive flow through a
// browser redirect. The hosting layer sends the user to AuthCodeURL and
// feeds the redirect query back to HandleCallback.
type Flow interface {
	auth.IdentityProvider

	// AuthCodeURL registers req as pending and returns the URL that starts
	// the provider's interactive flow for it.
	AuthCodeURL(req *auth.AuthRequest) (string, error)

	// HandleCallback turns the redirect query into the result for the
	// pending request it names. Each pending request is answered once.
	HandleCallback(ctx context.Context, query url.Values) (requestID string, result auth.ProviderResult)

	// LogoutURL returns where to send the browser after sign-out.
	LogoutURL(returnTo string) string

	// FlowTTL is how long a launched request waits for its callback.
	FlowTTL() time.Duration
}

type pendingFlow struct {
	verifier  string
	expiresAt time.Time
}

// flows tracks launched requests awaiting their callback. Entries expire
// after ttl; that is the only timeout in the sign-in path.
type flows struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]pendingFlow
}

func newFlows(ttl time.Duration) *flows {
	if ttl <= 0 {
		ttl = DefaultFlowTTL
	}
	return &flows{
		ttl:     ttl,
		now:     time.Now,
		pending: map[string]pendingFlow{},
	}
}

func (f *flows) register(id, verifier string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for k, v := range f.pending {
		if now.After(v.expiresAt) {
			delete(f.pending, k)
		}
	}
	f.pending[id] = pendingFlow{verifier: verifier, expiresAt: now.Add(f.ttl)}
}

// take removes and returns the pending flow for id.
func (f *flows) take(id string) (pendingFlow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	flow, ok := f.pending[id]
	if !ok {
		return pendingFlow{}, false
	}
	delete(f.pending, id)
	if f.now().After(flow.expiresAt) {
		return pendingFlow{}, false
	}
	return flow, true
}

// session is the provider's record of the signed-in user.
type session struct {
	mu   sync.RWMutex
	user *auth.Identity
}

func (s *session) set(user *auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

func (s *session) clear() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.user
	s.user = nil
	return user
}

func (s *session) current() (*auth.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	user := *s.user
	return &user, true
}

// callbackError maps an error redirect (RFC 6749 §4.1.2.1) to a result.
func callbackError(query url.Values) (auth.ProviderResult, bool) {
	code := query.Get("error")
	if code == "" {
		return auth.ProviderResult{}, false
	}

	err := errors.New(code)
	if desc := query.Get("error_description"); desc != "" {
		err = errors.New(code + ": " + desc)
	}

	status := auth.StatusError
	if code == "access_denied" {
		status = auth.StatusCancelled
	}
	return auth.ProviderResult{Status: status, Err: err}, true
}

// completeAsync runs fn on its own goroutine and reports its error on the
// returned channel.
func completeAsync(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
		close(done)
	}()
	return done
}
