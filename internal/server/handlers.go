package server

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/auth"
)

type StatusResponse struct {
	SignedIn bool   `json:"signed_in"`
	Email    string `json:"email,omitempty"`
	Message  string `json:"message,omitempty"`
}

type LogoutResponse struct {
	Message   string `json:"message"`
	LogoutURL string `json:"logout_url,omitempty"`
}

// status reports the message left in this browser's cookie. The signed-in
// email is shown only to the browser that owns the session.
func (s *Server) status(r *http.Request) StatusResponse {
	session, _ := s.store.Get(r, sessionName)
	resp := StatusResponse{}
	resp.Message, _ = session.Values[messageKey].(string)
	if user, err := s.sessionUser(r); err == nil && user != nil {
		resp.SignedIn = true
		resp.Email = user.Email
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.status(r))
}

// handleLogin starts a sign-in. The launch function binds the request to
// this browser with the flow cookie and redirects to the provider.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.coordinator.StartSignIn(r.Context(), func(req *auth.AuthRequest) {
		logger := zerolog.Ctx(r.Context())

		authURL, err := s.flow.AuthCodeURL(req)
		if err != nil {
			logger.Error().Err(err).Str("request_id", req.ID).Msg("Failed to build authorization URL")
			errorResponse(w, r, http.StatusInternalServerError, "Failed to start sign in")
			return
		}

		session, _ := s.store.Get(r, sessionName)
		session.Values[requestIDKey] = req.ID
		if err := s.saveSession(w, r, session); err != nil {
			logger.Error().Err(err).Msg("Failed to save flow cookie")
			errorResponse(w, r, http.StatusInternalServerError, "Failed to start sign in")
			return
		}

		s.track(req)

		logger.Info().
			Str("request_id", req.ID).
			Msg("Redirecting to identity provider")
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	})
}

// handleCallback resolves the pending request named by the redirect. A
// success without an identity panics out of the handler.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	session, err := s.store.Get(r, sessionName)
	if err != nil {
		logger.Debug().Err(err).Msg("Invalid or expired flow cookie")
	}
	expected, _ := session.Values[requestIDKey].(string)
	if state := r.URL.Query().Get("state"); expected == "" || state != expected {
		logger.Warn().
			Str("state", state).
			Bool("has_cookie", expected != "").
			Msg("Callback state does not match flow cookie")
		errorResponse(w, r, http.StatusBadRequest, ErrFlowMismatch.Error())
		return
	}

	requestID, result := s.flow.HandleCallback(ctx, r.URL.Query())
	delete(session.Values, requestIDKey)

	req, ok := s.untrack(requestID)
	if !ok {
		s.save(w, r, session)
		errorResponse(w, r, http.StatusBadRequest, ErrUnknownRequest.Error())
		return
	}

	var outcome Outcome
	onSuccess := func(email string) { outcome = Outcome{Email: email} }
	onFailure := func(err error) { outcome = Outcome{Err: err} }

	if err := s.coordinator.DeliverResult(ctx, req, result, onSuccess, onFailure); err != nil {
		s.save(w, r, session)
		errorResponse(w, r, http.StatusConflict, err.Error())
		return
	}

	resp := StatusResponse{Message: outcome.Message()}
	session.Values[messageKey] = resp.Message
	if outcome.Err == nil {
		if user, ok := s.coordinator.Provider().CurrentUser(ctx); ok {
			session.Values[subjectKey] = user.Subject
			resp.SignedIn = true
			resp.Email = user.Email
		}
	}
	s.save(w, r, session)

	if s.onOutcome != nil {
		s.onOutcome(outcome)
	}

	if outcome.Err != nil {
		errorResponse(w, r, http.StatusUnauthorized, outcome.Message())
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}

// handleLogout signs out the session owned by this browser. With nobody
// signed in it still completes.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	if err := await(r.Context(), func(done func()) { s.coordinator.SignOut(r.Context(), done) }); err != nil {
		errorResponse(w, r, http.StatusGatewayTimeout, err.Error())
		return
	}

	s.forget(w, r, MessageSignedOut)
	jsonResponse(w, http.StatusOK, LogoutResponse{
		Message:   MessageSignedOut,
		LogoutURL: s.flow.LogoutURL(returnTo(r)),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	if err := await(r.Context(), func(done func()) { s.coordinator.DeleteAccount(r.Context(), done) }); err != nil {
		errorResponse(w, r, http.StatusGatewayTimeout, err.Error())
		return
	}

	s.forget(w, r, MessageAccountDeleted)
	jsonResponse(w, http.StatusOK, StatusResponse{Message: MessageAccountDeleted})
}

// forget drops the subject from this browser's cookie and leaves message.
func (s *Server) forget(w http.ResponseWriter, r *http.Request, message string) {
	session, _ := s.store.Get(r, sessionName)
	delete(session.Values, subjectKey)
	session.Values[messageKey] = message
	s.save(w, r, session)
}

func returnTo(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}
