package di

import "time"

// CallbackURL overrides the configured OAuth redirect when non-empty.
type CallbackURL string

// DisableAuth swaps the OIDC provider for the dev provider.
type DisableAuth bool

// FlowTTL bounds how long a launched sign-in waits for its callback. Zero
// selects the identity provider's default.
type FlowTTL time.Duration

// Option configures New.
type Option func(*options)

func WithCallbackURL(url string) Option {
	return func(opts *options) {
		opts.callbackURL = CallbackURL(url)
	}
}

func WithDisableAuth(disable bool) Option {
	return func(opts *options) {
		opts.disableAuth = disable
	}
}

// WithFlowTTL sets how long a sign-in stays open, for both the provider
// and the server tracking it.
func WithFlowTTL(ttl time.Duration) Option {
	return func(opts *options) {
		opts.flowTTL = FlowTTL(ttl)
	}
}

// WithProviders registers extra constructors after the core ones. They may
// only produce types the core does not; providing a core type again makes
// New fail.
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	callbackURL CallbackURL
	disableAuth bool
	flowTTL     FlowTTL
	providers   []any
}
