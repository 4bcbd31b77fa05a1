package auth

import "context"

// IdentityProvider defines the contract for an external identity provider.
// The provider performs interactive authentication out of process; the
// coordinator only ever sees the result it reports back.
type IdentityProvider interface {
	// Option returns the single identity-provider option the sign-in flow
	// is configured with (e.g. Google).
	Option() IdPOption

	// SignOut ends the provider session. The returned channel yields at most
	// one value (or is closed) once the provider reports completion.
	SignOut(ctx context.Context) <-chan error

	// DeleteAccount deletes the signed-in account at the provider. Same
	// completion shape as SignOut.
	DeleteAccount(ctx context.Context) <-chan error

	// CurrentUser returns the identity of the signed-in user, if any.
	CurrentUser(ctx context.Context) (*Identity, bool)
}

// IdPOption names one identity provider that the interactive flow offers.
type IdPOption struct {
	Type   string   // provider type identifier (e.g. "google", "auth0")
	Scopes []string // scopes requested from the provider
}

// SignInOptions is the provider-configuration object handed to the hosting
// layer on launch.
type SignInOptions struct {
	Providers []IdPOption
}

// Identity is the authenticated-user handle a provider reports on success.
type Identity struct {
	Subject  string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
}
