package idp

import (
	"fmt"
	"net/url"
)

// Issuer defines the interface for OIDC issuers.
// Different providers (Auth0, Google, etc.) implement this interface
// to provide provider-specific configuration and behavior.
type Issuer interface {
	// GetIssuerURL returns the OIDC issuer URL for this provider.
	// This is used to discover the provider's OAuth2 endpoints.
	GetIssuerURL() string

	// GetLogoutURL returns the provider-specific logout URL.
	// clientID: OAuth client identifier
	// returnTo: URL to redirect to after logout
	GetLogoutURL(clientID, returnTo string) string

	// GetProviderType returns the provider type identifier (e.g., "auth0", "google").
	GetProviderType() string
}

// Auth0Issuer implements the Issuer interface for Auth0.
type Auth0Issuer struct {
	Domain string // Auth0 domain (e.g., "your-tenant.us.auth0.com")
}

// GetIssuerURL returns the Auth0 OIDC issuer URL.
func (p *Auth0Issuer) GetIssuerURL() string {
	return fmt.Sprintf("https://%s/", p.Domain)
}

// GetLogoutURL returns the Auth0-specific logout URL.
// Auth0 requires calling their /v2/logout endpoint to end the Auth0 session,
// not just the application session.
func (p *Auth0Issuer) GetLogoutURL(clientID, returnTo string) string {
	logoutURL := fmt.Sprintf("https://%s/v2/logout", p.Domain)
	params := url.Values{}
	params.Add("client_id", clientID)
	params.Add("returnTo", returnTo)
	return fmt.Sprintf("%s?%s", logoutURL, params.Encode())
}

// GetProviderType returns "auth0".
func (p *Auth0Issuer) GetProviderType() string {
	return "auth0"
}

// GoogleIssuer implements the Issuer interface for Google accounts.
type GoogleIssuer struct{}

// GetIssuerURL returns the Google OIDC issuer URL.
func (p *GoogleIssuer) GetIssuerURL() string {
	return "https://accounts.google.com"
}

// GetLogoutURL returns returnTo. Google has no relying-party logout
// endpoint; sign-out only ends the local provider session.
func (p *GoogleIssuer) GetLogoutURL(clientID, returnTo string) string {
	return returnTo
}

// GetProviderType returns "google".
func (p *GoogleIssuer) GetProviderType() string {
	return "google"
}

// StaticIssuer is an issuer at a fixed URL, e.g. a self-hosted IdP.
type StaticIssuer struct {
	URL  string
	Type string
}

func (p *StaticIssuer) GetIssuerURL() string {
	return p.URL
}

func (p *StaticIssuer) GetLogoutURL(clientID, returnTo string) string {
	return returnTo
}

func (p *StaticIssuer) GetProviderType() string {
	if p.Type == "" {
		return "oidc"
	}
	return p.Type
}

// NewIssuer returns the Issuer for a provider type.
func NewIssuer(providerType, domain string) (Issuer, error) {
	switch providerType {
	case "auth0":
		if domain == "" {
			return nil, fmt.Errorf("auth0 issuer requires a domain")
		}
		return &Auth0Issuer{Domain: domain}, nil
	case "google":
		return &GoogleIssuer{}, nil
	case "oidc":
		if domain == "" {
			return nil, fmt.Errorf("oidc issuer requires an issuer URL")
		}
		return &StaticIssuer{URL: domain, Type: "oidc"}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}
