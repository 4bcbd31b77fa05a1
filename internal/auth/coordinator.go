package auth

import (
	"context"

	"github.com/rs/zerolog"
)

// LaunchFunc presents the provider's interactive flow for req. It is supplied
// by the hosting layer and must not block until the flow finishes.
type LaunchFunc func(req *AuthRequest)

// Coordinator launches the external sign-in flow, classifies its result and
// relays sign-out and account deletion. It holds no per-call state.
type Coordinator struct {
	provider IdentityProvider
}

// NewCoordinator creates a Coordinator backed by provider.
func NewCoordinator(provider IdentityProvider) *Coordinator {
	return &Coordinator{provider: provider}
}

// Provider returns the identity provider the coordinator delegates to.
func (c *Coordinator) Provider() IdentityProvider {
	return c.provider
}

// StartSignIn builds the provider configuration (one identity-provider
// option) and hands a fresh request to launch. It returns immediately.
func (c *Coordinator) StartSignIn(ctx context.Context, launch LaunchFunc) {
	logger := zerolog.Ctx(ctx)

	if launch == nil {
		logger.Error().Msg("StartSignIn called without a launch function")
		return
	}

	option := c.provider.Option()
	req := newAuthRequest(SignInOptions{Providers: []IdPOption{option}})
	req.launch()

	logger.Info().
		Str("request_id", req.ID).
		Str("provider", option.Type).
		Msg("Launching sign-in flow")

	launch(req)
}

// OnSignInResult classifies result and invokes exactly one of onSuccess or
// onFailure. A success without an identity panics with *InvariantViolation
// and invokes neither.
func (c *Coordinator) OnSignInResult(ctx context.Context, result ProviderResult, onSuccess func(email string), onFailure func(err error)) {
	outcome, violation := Classify(result)
	c.resolve(ctx, result, outcome, violation, onSuccess, onFailure)
}

// DeliverResult resolves req with result. The request must have been
// launched by StartSignIn and is resolved at most once; later deliveries
// return ErrRequestResolved without invoking any callback.
func (c *Coordinator) DeliverResult(ctx context.Context, req *AuthRequest, result ProviderResult, onSuccess func(email string), onFailure func(err error)) error {
	if req == nil {
		return ErrNilRequest
	}

	outcome, violation := Classify(result)
	if !req.claim(terminalState(outcome, violation)) {
		if req.State() == StateIdle {
			return ErrRequestNotLaunched
		}
		zerolog.Ctx(ctx).Warn().
			Str("request_id", req.ID).
			Str("state", req.State().String()).
			Msg("Ignoring result for resolved auth request")
		return ErrRequestResolved
	}

	c.resolve(ctx, result, outcome, violation, onSuccess, onFailure)
	return nil
}

// terminalState is the request state a classified result settles in.
func terminalState(outcome SignInOutcome, violation error) RequestState {
	if violation != nil {
		return StateInvariantViolated
	}
	if _, ok := outcome.(Success); ok {
		return StateSucceededWithEmail
	}
	return StateFailedOrCancelled
}

func (c *Coordinator) resolve(ctx context.Context, result ProviderResult, outcome SignInOutcome, violation error, onSuccess func(email string), onFailure func(err error)) {
	logger := zerolog.Ctx(ctx)

	if violation != nil {
		logger.Error().
			Str("status", result.Status.String()).
			Err(violation).
			Msg("Provider reported success without an identity")
		panic(violation)
	}

	switch o := outcome.(type) {
	case Success:
		logger.Info().Str("email", o.Email).Msg("Sign-in succeeded")
		if onSuccess != nil {
			onSuccess(o.Email)
		}

	case Failure:
		logger.Warn().
			Str("status", result.Status.String()).
			Str("reason", o.Err.Reason.String()).
			Err(o.Err.Err).
			Msg("Sign-in failed")
		if onFailure != nil {
			onFailure(o.Err)
		}
	}
}

// SignOut ends the provider session and invokes onComplete once the
// provider reports completion, whether or not a session existed.
func (c *Coordinator) SignOut(ctx context.Context, onComplete func()) {
	c.await(ctx, "sign_out", c.provider.SignOut(ctx), onComplete)
}

// DeleteAccount deletes the signed-in account and invokes onComplete once
// the provider reports completion.
func (c *Coordinator) DeleteAccount(ctx context.Context, onComplete func()) {
	c.await(ctx, "delete_account", c.provider.DeleteAccount(ctx), onComplete)
}

// IsSignedIn asks the provider whether a user is currently signed in.
func (c *Coordinator) IsSignedIn(ctx context.Context) bool {
	_, ok := c.provider.CurrentUser(ctx)
	return ok
}

// await invokes onComplete once done yields or closes. Provider errors are
// logged; completion is terminal either way. A nil channel completes
// immediately.
func (c *Coordinator) await(ctx context.Context, op string, done <-chan error, onComplete func()) {
	logger := zerolog.Ctx(ctx)

	complete := func(err error) {
		if err != nil {
			logger.Warn().Str("op", op).Err(err).Msg("Provider completed with error")
		} else {
			logger.Info().Str("op", op).Msg("Provider completed")
		}
		if onComplete != nil {
			onComplete()
		}
	}

	if done == nil {
		complete(nil)
		return
	}

	go func() {
		err := <-done
		complete(err)
	}()
}
