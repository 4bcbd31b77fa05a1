// Package server hosts the sign-in flow over HTTP. It supplies the launch
// function to the coordinator, feeds provider redirects back as results and
// exposes sign-out, account deletion and a GraphQL status API.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/auth"
	"github.com/savaki/coachme-auth/internal/gql"
	"github.com/savaki/coachme-auth/internal/idp"
)

const (
	sessionName  = "coachme-flow"
	requestIDKey = "request_id"
	subjectKey   = "subject"
	messageKey   = "message"

	// signedInMaxAge is the cookie lifetime once it names a signed-in subject.
	signedInMaxAge = 24 * time.Hour

	MessageSignedOut      = "Signed out"
	MessageAccountDeleted = "Account deleted"
)

var (
	ErrFlowMismatch    = errors.New("sign-in flow does not belong to this browser")
	ErrUnknownRequest  = errors.New("unknown sign-in request")
	ErrSessionRequired = errors.New("sign in from this browser first")
	ErrSessionMismatch = errors.New("signed-in session belongs to another browser")
)

// Outcome is the result of one completed sign-in.
type Outcome struct {
	Email string
	Err   error
}

// Message is the text shown to the user for the outcome.
func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return "Signed in as " + o.Email
}

type Input struct {
	Coordinator *auth.Coordinator
	Flow        idp.Flow
	Schema      *graphql.Schema // optional; POST /graphql is not routed without it
	SessionKeys [][]byte
	Secure      bool          // set the Secure flag on the flow cookie
	FlowTTL     time.Duration // defaults to the flow's own lifetime
	OnOutcome   func(Outcome)
}

type Server struct {
	coordinator *auth.Coordinator
	flow        idp.Flow
	schema      *graphql.Schema
	store       *sessions.CookieStore
	flowTTL     time.Duration
	onOutcome   func(Outcome)
	now         func() time.Time

	mu      sync.Mutex
	pending map[string]*auth.AuthRequest
}

func New(input Input) (*Server, error) {
	if input.Coordinator == nil || input.Flow == nil {
		return nil, errors.New("server requires a coordinator and a flow")
	}
	if len(input.SessionKeys) == 0 {
		return nil, errors.New("server requires at least one session key")
	}

	flowTTL := input.FlowTTL
	if flowTTL <= 0 {
		flowTTL = input.Flow.FlowTTL()
	}

	// gorilla/sessions signs with the first key and tries all keys on read
	store := sessions.NewCookieStore(input.SessionKeys...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(flowTTL.Seconds()),
		HttpOnly: true,
		Secure:   input.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		coordinator: input.Coordinator,
		flow:        input.Flow,
		schema:      input.Schema,
		store:       store,
		flowTTL:     flowTTL,
		onOutcome:   input.OnOutcome,
		now:         time.Now,
		pending:     map[string]*auth.AuthRequest{},
	}, nil
}

// Handler configures all HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET /oauth/callback", s.handleCallback)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /delete", s.handleDelete)

	if s.schema != nil {
		mux.Handle("POST /graphql", s.graphqlHandler())
	}

	return mux
}

// graphqlHandler serves the schema, granting session access only to the
// browser that owns the signed-in session.
func (s *Server) graphqlHandler() http.Handler {
	handler := &relay.Handler{Schema: s.schema}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := s.sessionUser(r)
		ctx := gql.WithSessionAccess(r.Context(), err == nil)
		handler.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionUser returns the provider's signed-in user when r carries the
// cookie issued to that user at sign-in. With nobody signed in it returns
// nil and no error.
func (s *Server) sessionUser(r *http.Request) (*auth.Identity, error) {
	user, ok := s.coordinator.Provider().CurrentUser(r.Context())
	if !ok {
		return nil, nil
	}

	session, _ := s.store.Get(r, sessionName)
	subject, _ := session.Values[subjectKey].(string)
	switch {
	case subject == "":
		return nil, ErrSessionRequired
	case subject != user.Subject:
		return nil, ErrSessionMismatch
	}
	return user, nil
}

// authorize writes 401 or 403 and returns false unless r may act on the
// signed-in session.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	_, err := s.sessionUser(r)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrSessionMismatch):
		errorResponse(w, r, http.StatusForbidden, err.Error())
	default:
		errorResponse(w, r, http.StatusUnauthorized, err.Error())
	}
	return false
}

// saveSession writes the cookie, keeping it for signedInMaxAge while it
// names a subject.
func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) error {
	if subject, _ := session.Values[subjectKey].(string); subject != "" {
		session.Options.MaxAge = int(signedInMaxAge.Seconds())
	}
	return session.Save(r, w)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := s.saveSession(w, r, session); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to save session cookie")
	}
}

// track records req as awaiting its callback and forgets requests older
// than the flow lifetime.
func (s *Server) track(req *auth.AuthRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.pending {
		if s.now().Sub(other.CreatedAt) > s.flowTTL {
			delete(s.pending, id)
		}
	}
	s.pending[req.ID] = req
}

func (s *Server) untrack(id string) (*auth.AuthRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[id]
	delete(s.pending, id)
	return req, ok
}

// await bridges a completion callback to the request lifetime.
func await(ctx context.Context, start func(onComplete func())) error {
	done := make(chan struct{})
	start(func() { close(done) })

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		zerolog.Ctx(ctx).Warn().Err(ctx.Err()).Msg("Request ended before provider completed")
		return ctx.Err()
	}
}
