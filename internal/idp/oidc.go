package idp

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/auth"
	"github.com/savaki/coachme-auth/internal/authz"
	"golang.org/x/oauth2"
)

// Profile holds the id token claims the provider reads.
type Profile struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

// OIDCProvider runs the authorization code flow (with PKCE) against an
// OIDC issuer and keeps the resulting provider session in memory.
type OIDCProvider struct {
	issuer       Issuer
	verifier     *oidc.IDTokenVerifier
	oauth2Config oauth2.Config
	authorizer   *authz.Authorizer // optional authorization policy enforcement
	directory    Directory
	flows        *flows
	session      session
}

type OIDCProviderInput struct {
	Issuer       Issuer
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Authorizer   *authz.Authorizer
	Directory    Directory
	FlowTTL      time.Duration
}

var _ Flow = (*OIDCProvider)(nil)

func NewOIDCProvider(ctx context.Context, input OIDCProviderInput) (*OIDCProvider, error) {
	logger := zerolog.Ctx(ctx)
	issuerURL := input.Issuer.GetIssuerURL()

	logger.Info().
		Str("provider_type", input.Issuer.GetProviderType()).
		Str("issuer_url", issuerURL).
		Msg("Initializing OIDC provider")

	oidcProvider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		logger.Error().
			Err(err).
			Str("issuer_url", issuerURL).
			Str("provider_type", input.Issuer.GetProviderType()).
			Msg("Failed to create OIDC provider")
		return nil, fmt.Errorf("failed to create OIDC provider for %s: %w", issuerURL, err)
	}

	endpoint := oidcProvider.Endpoint()
	logger.Info().
		Str("auth_url", endpoint.AuthURL).
		Str("token_url", endpoint.TokenURL).
		Msg("OAuth endpoints configured")

	directory := input.Directory
	if directory == nil {
		directory = NewMemoryDirectory()
	}

	return &OIDCProvider{
		issuer:   input.Issuer,
		verifier: oidcProvider.Verifier(&oidc.Config{ClientID: input.ClientID}),
		oauth2Config: oauth2.Config{
			ClientID:     input.ClientID,
			ClientSecret: input.ClientSecret,
			RedirectURL:  input.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		authorizer: input.Authorizer,
		directory:  directory,
		flows:      newFlows(input.FlowTTL),
	}, nil
}

func (p *OIDCProvider) FlowTTL() time.Duration {
	return p.flows.ttl
}

func (p *OIDCProvider) Option() auth.IdPOption {
	return auth.IdPOption{
		Type:   p.issuer.GetProviderType(),
		Scopes: append([]string(nil), p.oauth2Config.Scopes...),
	}
}

// AuthCodeURL uses the request ID as the OAuth state.
func (p *OIDCProvider) AuthCodeURL(req *auth.AuthRequest) (string, error) {
	if req == nil {
		return "", auth.ErrNilRequest
	}

	verifier := oauth2.GenerateVerifier()
	p.flows.register(req.ID, verifier)

	return p.oauth2Config.AuthCodeURL(req.ID, oauth2.S256ChallengeOption(verifier)), nil
}

func (p *OIDCProvider) HandleCallback(ctx context.Context, query url.Values) (string, auth.ProviderResult) {
	logger := zerolog.Ctx(ctx)

	state := query.Get("state")
	if state == "" {
		logger.Error().Msg("State not found in callback")
		return "", auth.ProviderResult{Status: auth.StatusError, Err: ErrMissingState}
	}

	if result, ok := callbackError(query); ok {
		p.flows.take(state)
		logger.Info().
			Str("state", state).
			Str("status", result.Status.String()).
			Err(result.Err).
			Msg("Provider returned an error redirect")
		return state, result
	}

	flow, ok := p.flows.take(state)
	if !ok {
		logger.Error().Str("state", state).Msg("No pending sign-in flow for state")
		return state, auth.ProviderResult{Status: auth.StatusError, Err: ErrUnknownFlow}
	}

	code := query.Get("code")
	if code == "" {
		logger.Error().Msg("Code not found in callback")
		return state, auth.ProviderResult{Status: auth.StatusError, Err: ErrMissingCode}
	}

	return state, p.exchange(ctx, code, flow.verifier)
}

func (p *OIDCProvider) exchange(ctx context.Context, code, verifier string) auth.ProviderResult {
	logger := zerolog.Ctx(ctx)

	token, err := p.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to exchange code for token")
		return auth.ProviderResult{Status: auth.StatusError, Err: fmt.Errorf("failed to exchange token: %w", err)}
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		logger.Error().Msg("No id_token in token response")
		return auth.ProviderResult{Status: auth.StatusError, Err: ErrNoIDToken}
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logger.Error().
			Err(err).
			Str("client_id", p.oauth2Config.ClientID).
			Msg("Failed to verify ID token")
		return auth.ProviderResult{Status: auth.StatusError, Err: fmt.Errorf("failed to verify token: %w", err)}
	}

	logger.Info().
		Str("issuer", idToken.Issuer).
		Str("subject", idToken.Subject).
		Msg("ID token verified successfully")

	var profile Profile
	if err := idToken.Claims(&profile); err != nil {
		logger.Error().Err(err).Msg("Failed to extract claims")
		return auth.ProviderResult{Status: auth.StatusError, Err: fmt.Errorf("failed to extract profile: %w", err)}
	}

	if p.authorizer != nil {
		if err := p.authorizer.Authorize(ctx, profile.toAuthz()); err != nil {
			logger.Warn().
				Str("sub", profile.Sub).
				Str("email", profile.Email).
				Err(err).
				Msg("User authorization failed")
			return auth.ProviderResult{Status: auth.StatusError, Err: err}
		}
	}

	identity := &auth.Identity{
		Subject:  profile.Sub,
		Email:    profile.Email,
		Name:     profile.Name,
		Provider: p.issuer.GetProviderType(),
	}

	// A token without an email claim is still a provider success; the
	// coordinator treats that as a broken contract.
	if identity.Email == "" {
		logger.Error().Str("sub", profile.Sub).Msg("ID token has no email claim")
		return auth.ProviderResult{Status: auth.StatusSuccess, Identity: identity}
	}

	if err := p.directory.Put(ctx, Account{
		Subject:      identity.Subject,
		Email:        identity.Email,
		Name:         identity.Name,
		Provider:     identity.Provider,
		LastSignInAt: time.Now(),
	}); err != nil {
		logger.Error().Err(err).Str("sub", identity.Subject).Msg("Failed to record account")
		return auth.ProviderResult{Status: auth.StatusError, Err: fmt.Errorf("failed to record account: %w", err)}
	}

	p.session.set(identity)
	return auth.ProviderResult{Status: auth.StatusSuccess, Identity: identity}
}

func (p *OIDCProvider) SignOut(ctx context.Context) <-chan error {
	logger := zerolog.Ctx(ctx)
	return completeAsync(func() error {
		if user := p.session.clear(); user != nil {
			logger.Info().Str("email", user.Email).Msg("Provider session ended")
		}
		return nil
	})
}

func (p *OIDCProvider) DeleteAccount(ctx context.Context) <-chan error {
	return deleteAccount(ctx, &p.session, p.directory)
}

func (p *OIDCProvider) CurrentUser(ctx context.Context) (*auth.Identity, bool) {
	return p.session.current()
}

func (p *OIDCProvider) LogoutURL(returnTo string) string {
	return p.issuer.GetLogoutURL(p.oauth2Config.ClientID, returnTo)
}

func (profile Profile) toAuthz() authz.Profile {
	verified := true
	if profile.EmailVerified != nil {
		verified = *profile.EmailVerified
	}
	return authz.Profile{
		Sub:           profile.Sub,
		Name:          profile.Name,
		Email:         profile.Email,
		EmailVerified: verified,
	}
}

// deleteAccount removes the signed-in user's directory entry and ends the
// session. It outlives the caller's context.
func deleteAccount(ctx context.Context, s *session, directory Directory) <-chan error {
	logger := zerolog.Ctx(ctx)
	ctx = context.WithoutCancel(ctx)

	return completeAsync(func() error {
		user := s.clear()
		if user == nil {
			return ErrNotSignedIn
		}
		if err := directory.Delete(ctx, user.Subject); err != nil {
			return fmt.Errorf("failed to delete account %s: %w", user.Subject, err)
		}
		logger.Info().Str("email", user.Email).Str("sub", user.Subject).Msg("Account deleted")
		return nil
	})
}
