// Package di wires the sign-in service together with uber's dig. Domain
// packages never see the container; they take explicit constructor
// parameters and the Provide* functions here adapt configuration to them.
package di

import (
	"go.uber.org/dig"
)

// Container defines a dependency injection container based on uber's dig.
type Container interface {
	// Invoke executes a function, injecting its dependencies from the container.
	Invoke(function any, opts ...dig.InvokeOption) error

	// Provide registers a constructor function in the container.
	Provide(constructor any, opts ...dig.ProvideOption) error

	// Scope creates a scoped sub-container with its own set of values.
	Scope(name string, opts ...dig.ScopeOption) *dig.Scope
}

// MustGet resolves T from container or panics.
//
//	coordinator := MustGet[*auth.Coordinator](container)
func MustGet[T any](container Container) (want T) {
	callback := func(got T) {
		want = got
	}
	if err := container.Invoke(callback); err != nil {
		panic(err)
	}
	return want
}

// New creates a container for env with the core providers registered.
// env, CallbackURL, DisableAuth and FlowTTL are injectable as plain values.
//
//	container, err := New("dev",
//	    WithDisableAuth(true),
//	    WithProviders(func() *Clock { return &Clock{} }),
//	)
func New(env string, opts ...Option) (Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	container := dig.New()
	if err := container.Provide(func() string { return env }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() CallbackURL { return o.callbackURL }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() DisableAuth { return DisableAuth(o.disableAuth) }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() FlowTTL { return o.flowTTL }); err != nil {
		return nil, err
	}

	for _, provider := range core {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	for _, provider := range o.providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}

var core = []any{
	ProvideLogger,
	ProvideContext,
	ProvideAWSConfig,
	ProvideSSMClient,
	ProvideSecretsManagerClient,
	ProvideDynamoDB,
	ProvideParameterStore,
	ProvideAppConfig,
	ProvideOAuthConfigSource,
	ProvideOAuthConfig,
	ProvideSessionKeys,
	ProvideAuthorizer,
	ProvideDirectory,
	ProvideFlow,
	ProvideCoordinator,
	ProvideGraphQL,
	ProvideServer,
}
