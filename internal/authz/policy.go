package authz

import (
	"context"
	"fmt"
	"strings"
)

// Profile represents user information needed for authorization.
// This mirrors the idp.Profile claims but keeps packages decoupled.
type Profile struct {
	Sub           string
	Name          string
	Email         string
	EmailVerified bool
}

// Policy defines an authorization rule that can allow or deny a sign-in.
type Policy interface {
	// Authorize returns nil if the user is authorized, or an error if denied.
	Authorize(ctx context.Context, profile Profile) error
	// Name returns a human-readable name for this policy.
	Name() string
}

// EmailPolicy restricts sign-in to a specific email.
// Behavior varies by provider type:
// - auth0: Only applies to federated Google login (sub starts with "google-oauth2|")
// - google: Applies to all users (all users are Google users)
type EmailPolicy struct {
	AllowedEmail string
	ProviderType string // "auth0", "google", "oidc" or "dev"
}

// Name returns the policy name.
func (p *EmailPolicy) Name() string {
	return "EmailRestriction"
}

// Authorize checks if the user is authorized based on the email policy.
func (p *EmailPolicy) Authorize(_ context.Context, profile Profile) error {
	switch p.ProviderType {
	case "auth0":
		// Auth0 Google logins have sub format: "google-oauth2|123456"
		if strings.HasPrefix(profile.Sub, "google-oauth2|") {
			if !strings.EqualFold(profile.Email, p.AllowedEmail) {
				return fmt.Errorf("access denied: email %s is not authorized for Google authentication", profile.Email)
			}
		}
		// For non-Google Auth0 connections, allow access
		return nil

	case "google", "oidc", "dev":
		if !strings.EqualFold(profile.Email, p.AllowedEmail) {
			return fmt.Errorf("access denied: email %s is not authorized", profile.Email)
		}
		return nil

	default:
		// Unknown provider type, deny access to be safe
		return fmt.Errorf("unknown provider type: %s", p.ProviderType)
	}
}

// Authorizer manages a collection of authorization policies.
type Authorizer struct {
	policies []Policy
	enabled  bool
}

// NewAuthorizer creates a new authorizer with the given policies.
func NewAuthorizer(enabled bool, policies ...Policy) *Authorizer {
	return &Authorizer{
		policies: policies,
		enabled:  enabled,
	}
}

// Authorize runs all policies and returns an error if any policy denies access.
func (a *Authorizer) Authorize(ctx context.Context, profile Profile) error {
	if !a.enabled {
		return nil
	}

	for _, policy := range a.policies {
		if err := policy.Authorize(ctx, profile); err != nil {
			return fmt.Errorf("authorization policy %s failed: %w", policy.Name(), err)
		}
	}
	return nil
}

// NewEmailAuthorizer creates a preconfigured authorizer for a single allowed email.
// providerType should be "auth0" or "google" to determine policy behavior.
func NewEmailAuthorizer(enabled bool, allowedEmail string, providerType string) *Authorizer {
	return NewAuthorizer(enabled, &EmailPolicy{
		AllowedEmail: allowedEmail,
		ProviderType: providerType,
	})
}
