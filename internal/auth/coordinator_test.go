package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/savaki/coachme-auth/internal/auth"
	"github.com/savaki/coachme-auth/internal/auth/authtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func TestOnSignInResult(t *testing.T) {
	tests := []struct {
		name        string
		result      auth.ProviderResult
		wantEmail   string
		wantFailure string
		wantReason  auth.FailureReason
	}{
		{
			name:        "failure status without identity",
			result:      auth.ProviderResult{Status: auth.StatusError},
			wantFailure: "login error",
			wantReason:  auth.ReasonProvider,
		},
		{
			name:      "success with email",
			result:    auth.ProviderResult{Status: auth.StatusSuccess, Identity: &auth.Identity{Email: "a@b.com"}},
			wantEmail: "a@b.com",
		},
		{
			name:        "cancelled",
			result:      auth.ProviderResult{Status: auth.StatusCancelled},
			wantFailure: "User cancelled sign in",
			wantReason:  auth.ReasonCancelled,
		},
		{
			name: "provider error with detail",
			result: auth.ProviderResult{
				Status:   auth.StatusError,
				Identity: &auth.Identity{Email: "ignored@b.com"},
				Err:      errors.New("network unreachable"),
			},
			wantFailure: "login error: network unreachable",
			wantReason:  auth.ReasonProvider,
		},
		{
			name:        "zero value result",
			result:      auth.ProviderResult{},
			wantFailure: "login error",
			wantReason:  auth.ReasonUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator := auth.NewCoordinator(authtest.New(nil))
			recorder := authtest.NewRecorder()

			coordinator.OnSignInResult(context.Background(), tt.result, recorder.OnSuccess, recorder.OnFailure)

			assert.Equal(t, 1, recorder.Calls())
			if tt.wantEmail != "" {
				assert.Equal(t, []string{tt.wantEmail}, recorder.Emails())
				assert.Empty(t, recorder.Failures())
				return
			}

			assert.Empty(t, recorder.Emails())
			failures := recorder.Failures()
			require.Len(t, failures, 1)
			assert.EqualError(t, failures[0], tt.wantFailure)

			var signInErr *auth.SignInError
			require.True(t, errors.As(failures[0], &signInErr))
			assert.Equal(t, tt.wantReason, signInErr.Reason)
		})
	}
}

func TestOnSignInResult_SuccessWithoutIdentity(t *testing.T) {
	tests := []struct {
		name     string
		identity *auth.Identity
	}{
		{name: "nil identity", identity: nil},
		{name: "empty email", identity: &auth.Identity{Subject: "123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator := auth.NewCoordinator(authtest.New(nil))
			recorder := authtest.NewRecorder()
			result := auth.ProviderResult{Status: auth.StatusSuccess, Identity: tt.identity}

			assert.PanicsWithError(t, "User is null", func() {
				coordinator.OnSignInResult(context.Background(), result, recorder.OnSuccess, recorder.OnFailure)
			})
			assert.Equal(t, 0, recorder.Calls())
		})
	}
}

func TestOnSignInResult_PanicValueIsInvariantViolation(t *testing.T) {
	coordinator := auth.NewCoordinator(authtest.New(nil))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)

		var violation *auth.InvariantViolation
		assert.True(t, errors.As(err, &violation))
	}()

	coordinator.OnSignInResult(context.Background(), auth.ProviderResult{Status: auth.StatusSuccess}, nil, nil)
}

func TestStartSignIn(t *testing.T) {
	ctx := context.Background()
	provider := authtest.New(nil)
	provider.Result = auth.ProviderResult{Status: auth.StatusSuccess, Identity: &auth.Identity{Email: "a@b.com"}}
	coordinator := auth.NewCoordinator(provider)
	recorder := authtest.NewRecorder()

	coordinator.StartSignIn(ctx, provider.Launcher(func(req *auth.AuthRequest, result auth.ProviderResult) {
		assert.Equal(t, auth.StateLaunched, req.State())
		err := coordinator.DeliverResult(ctx, req, result, recorder.OnSuccess, recorder.OnFailure)
		assert.NoError(t, err)
	}))

	launched := provider.Launched()
	require.Len(t, launched, 1)

	req := launched[0]
	assert.NotEmpty(t, req.ID)
	require.Len(t, req.Options.Providers, 1)
	assert.Equal(t, "fake", req.Options.Providers[0].Type)
	assert.Equal(t, auth.StateSucceededWithEmail, req.State())
	assert.Equal(t, []string{"a@b.com"}, recorder.Emails())
	assert.True(t, coordinator.IsSignedIn(ctx))
}

func TestStartSignIn_FreshRequestPerCall(t *testing.T) {
	ctx := context.Background()
	provider := authtest.New(nil)
	coordinator := auth.NewCoordinator(provider)

	coordinator.StartSignIn(ctx, provider.Launcher(nil))
	coordinator.StartSignIn(ctx, provider.Launcher(nil))

	launched := provider.Launched()
	require.Len(t, launched, 2)
	assert.NotEqual(t, launched[0].ID, launched[1].ID)
	assert.Equal(t, auth.StateLaunched, launched[0].State())
	assert.Equal(t, auth.StateLaunched, launched[1].State())
}

func TestStartSignIn_NilLaunch(t *testing.T) {
	provider := authtest.New(nil)
	coordinator := auth.NewCoordinator(provider)

	assert.NotPanics(t, func() {
		coordinator.StartSignIn(context.Background(), nil)
	})
	assert.Empty(t, provider.Launched())
}

func TestDeliverResult(t *testing.T) {
	ctx := context.Background()
	provider := authtest.New(nil)
	coordinator := auth.NewCoordinator(provider)

	var req *auth.AuthRequest
	coordinator.StartSignIn(ctx, func(r *auth.AuthRequest) { req = r })
	require.NotNil(t, req)

	t.Run("first delivery resolves", func(t *testing.T) {
		recorder := authtest.NewRecorder()
		err := coordinator.DeliverResult(ctx, req, auth.ProviderResult{Status: auth.StatusCancelled}, recorder.OnSuccess, recorder.OnFailure)
		assert.NoError(t, err)
		assert.Len(t, recorder.Failures(), 1)
		assert.Equal(t, auth.StateFailedOrCancelled, req.State())
	})

	t.Run("second delivery is rejected", func(t *testing.T) {
		recorder := authtest.NewRecorder()
		result := auth.ProviderResult{Status: auth.StatusSuccess, Identity: &auth.Identity{Email: "a@b.com"}}
		err := coordinator.DeliverResult(ctx, req, result, recorder.OnSuccess, recorder.OnFailure)
		assert.ErrorIs(t, err, auth.ErrRequestResolved)
		assert.Equal(t, 0, recorder.Calls())
		assert.Equal(t, auth.StateFailedOrCancelled, req.State())
	})

	t.Run("nil request", func(t *testing.T) {
		err := coordinator.DeliverResult(ctx, nil, auth.ProviderResult{}, nil, nil)
		assert.ErrorIs(t, err, auth.ErrNilRequest)
	})

	t.Run("request not launched", func(t *testing.T) {
		err := coordinator.DeliverResult(ctx, &auth.AuthRequest{}, auth.ProviderResult{}, nil, nil)
		assert.ErrorIs(t, err, auth.ErrRequestNotLaunched)
	})
}

func TestDeliverResult_InvariantViolation(t *testing.T) {
	ctx := context.Background()
	coordinator := auth.NewCoordinator(authtest.New(nil))
	recorder := authtest.NewRecorder()

	var req *auth.AuthRequest
	coordinator.StartSignIn(ctx, func(r *auth.AuthRequest) { req = r })
	require.NotNil(t, req)

	assert.PanicsWithError(t, "User is null", func() {
		_ = coordinator.DeliverResult(ctx, req, auth.ProviderResult{Status: auth.StatusSuccess}, recorder.OnSuccess, recorder.OnFailure)
	})
	assert.Equal(t, auth.StateInvariantViolated, req.State())
	assert.Equal(t, 0, recorder.Calls())

	err := coordinator.DeliverResult(ctx, req, auth.ProviderResult{Status: auth.StatusCancelled}, recorder.OnSuccess, recorder.OnFailure)
	assert.ErrorIs(t, err, auth.ErrRequestResolved)
}

func TestDeliverResult_TerminalState(t *testing.T) {
	identity := &auth.Identity{Subject: "123", Email: "a@b.com"}

	tests := []struct {
		name      string
		result    auth.ProviderResult
		wantState auth.RequestState
		wantPanic bool
	}{
		{
			name:      "success",
			result:    auth.ProviderResult{Status: auth.StatusSuccess, Identity: identity},
			wantState: auth.StateSucceededWithEmail,
		},
		{
			name:      "unknown status with identity",
			result:    auth.ProviderResult{Status: auth.StatusUnknown, Identity: identity},
			wantState: auth.StateFailedOrCancelled,
		},
		{
			name:      "error with identity",
			result:    auth.ProviderResult{Status: auth.StatusError, Identity: identity},
			wantState: auth.StateFailedOrCancelled,
		},
		{
			name:      "success with empty email",
			result:    auth.ProviderResult{Status: auth.StatusSuccess, Identity: &auth.Identity{Subject: "123"}},
			wantState: auth.StateInvariantViolated,
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			coordinator := auth.NewCoordinator(authtest.New(nil))
			recorder := authtest.NewRecorder()

			var req *auth.AuthRequest
			coordinator.StartSignIn(ctx, func(r *auth.AuthRequest) { req = r })
			require.NotNil(t, req)

			deliver := func() {
				_ = coordinator.DeliverResult(ctx, req, tt.result, recorder.OnSuccess, recorder.OnFailure)
			}
			if tt.wantPanic {
				assert.Panics(t, deliver)
				assert.Equal(t, 0, recorder.Calls())
			} else {
				assert.NotPanics(t, deliver)
				assert.Equal(t, 1, recorder.Calls())
			}
			assert.Equal(t, tt.wantState, req.State())
		})
	}
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	provider := authtest.New(&auth.Identity{Email: "a@b.com"})
	coordinator := auth.NewCoordinator(provider)
	recorder := authtest.NewRecorder()

	coordinator.SignOut(ctx, recorder.OnComplete)
	require.True(t, recorder.Wait(1, waitTimeout))
	assert.Equal(t, 1, recorder.Completions())
	assert.False(t, coordinator.IsSignedIn(ctx))

	// second sign-out without a session still completes
	coordinator.SignOut(ctx, recorder.OnComplete)
	require.True(t, recorder.Wait(1, waitTimeout))
	assert.Equal(t, 2, recorder.Completions())
	assert.Equal(t, 2, provider.SignOutCalls())
}

func TestSignOut_WaitsForProvider(t *testing.T) {
	provider := authtest.New(&auth.Identity{Email: "a@b.com"})
	provider.Hold = make(chan struct{})
	coordinator := auth.NewCoordinator(provider)
	recorder := authtest.NewRecorder()

	coordinator.SignOut(context.Background(), recorder.OnComplete)
	assert.False(t, recorder.Wait(1, 50*time.Millisecond))
	assert.Equal(t, 0, recorder.Completions())

	close(provider.Hold)
	require.True(t, recorder.Wait(1, waitTimeout))
	assert.Equal(t, 1, recorder.Completions())
}

func TestSignOut_ProviderErrorStillCompletes(t *testing.T) {
	provider := authtest.New(nil)
	provider.SignOutErr = errors.New("revocation endpoint unavailable")
	coordinator := auth.NewCoordinator(provider)
	recorder := authtest.NewRecorder()

	coordinator.SignOut(context.Background(), recorder.OnComplete)
	require.True(t, recorder.Wait(1, waitTimeout))
	assert.Equal(t, 1, recorder.Completions())
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	provider := authtest.New(&auth.Identity{Email: "a@b.com"})
	coordinator := auth.NewCoordinator(provider)
	recorder := authtest.NewRecorder()

	coordinator.DeleteAccount(ctx, recorder.OnComplete)
	require.True(t, recorder.Wait(1, waitTimeout))

	assert.Equal(t, 1, recorder.Completions())
	assert.Equal(t, 1, provider.DeleteCalls())
	assert.False(t, coordinator.IsSignedIn(ctx))

	// no further completion arrives for a single call
	assert.False(t, recorder.Wait(1, 50*time.Millisecond))
	assert.Equal(t, 1, recorder.Completions())
}

func TestDeleteAccount_ProviderError(t *testing.T) {
	provider := authtest.New(&auth.Identity{Email: "a@b.com"})
	provider.DeleteErr = errors.New("account not found")
	coordinator := auth.NewCoordinator(provider)
	recorder := authtest.NewRecorder()

	coordinator.DeleteAccount(context.Background(), recorder.OnComplete)
	require.True(t, recorder.Wait(1, waitTimeout))
	assert.Equal(t, 1, recorder.Completions())
}
