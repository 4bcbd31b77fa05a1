package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/auth"
	errs "github.com/savaki/coachme-auth/internal/errors"
	"github.com/savaki/coachme-auth/internal/idp"
	"github.com/savaki/coachme-auth/internal/server"
	"github.com/savaki/coachme-auth/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"
)

type Clock struct {
	Zone string
}

type Reminder struct {
	Clock *Clock
	Env   string
}

// localEnv clears AWS and OAuth settings so the container runs offline.
func localEnv(t *testing.T) {
	t.Setenv("DISABLE_SSM", "true")
	t.Setenv("AWS_REGION", "eu-central-2")
	for _, name := range []string{"ALLOWED_EMAIL", "POLICY_FILE", "DIRECTORY", "CALLBACK_URL", "DEV_EMAIL", "OAUTH_PROVIDER", "OAUTH_CLIENT_ID"} {
		t.Setenv(name, "")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name: "core providers only",
		},
		{
			name: "extra providers",
			opts: []Option{
				WithProviders(
					func() *Clock { return &Clock{Zone: "Europe/Zurich"} },
					func(c *Clock, env string) *Reminder { return &Reminder{Clock: c, Env: env} },
				),
			},
		},
		{
			name: "duplicate provider",
			opts: []Option{
				WithProviders(
					func() *Clock { return &Clock{} },
					func() *Clock { return &Clock{} },
				),
			},
			wantErr: true,
		},
		{
			name:    "provider conflicting with core",
			opts:    []Option{WithProviders(func() *auth.Coordinator { return nil })},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, err := New("dev", tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, container)
		})
	}
}

func TestMustGet(t *testing.T) {
	container, err := New("staging",
		WithCallbackURL("http://localhost:9000/oauth/callback"),
		WithDisableAuth(true),
		WithProviders(
			func() *Clock { return &Clock{Zone: "UTC"} },
			func(c *Clock, env string) *Reminder { return &Reminder{Clock: c, Env: env} },
		),
	)
	require.NoError(t, err)

	reminder := MustGet[*Reminder](container)
	assert.Equal(t, "staging", reminder.Env)
	assert.Equal(t, "UTC", reminder.Clock.Zone)

	assert.Equal(t, CallbackURL("http://localhost:9000/oauth/callback"), MustGet[CallbackURL](container))
	assert.Equal(t, DisableAuth(true), MustGet[DisableAuth](container))

	assert.Panics(t, func() {
		MustGet[*os.File](container)
	})
}

func TestNew_LocalWiring(t *testing.T) {
	localEnv(t)
	t.Setenv("DEV_EMAIL", "coach@example.com")

	container, err := New("local",
		WithCallbackURL("http://localhost:9000/oauth/callback"),
		WithDisableAuth(true),
	)
	require.NoError(t, err)

	config := MustGet[*services.Config](container)
	assert.Equal(t, "http://localhost:9000/oauth/callback", config.CallbackURL)
	assert.Equal(t, services.DirectoryMemory, config.Directory)

	flow := MustGet[idp.Flow](container)
	assert.Equal(t, "dev", flow.Option().Type)

	coordinator := MustGet[*auth.Coordinator](container)
	assert.Same(t, flow, coordinator.Provider())

	keys := MustGet[[][]byte](container)
	require.Len(t, keys, 1)
	assert.Len(t, keys[0], 32)

	assert.NotNil(t, MustGet[*server.Server](container))
}

func TestNew_WithFlowTTL(t *testing.T) {
	localEnv(t)

	container, err := New("local",
		WithCallbackURL("http://localhost:9000/oauth/callback"),
		WithDisableAuth(true),
		WithFlowTTL(30*time.Minute),
	)
	require.NoError(t, err)

	assert.Equal(t, FlowTTL(30*time.Minute), MustGet[FlowTTL](container))
	assert.Equal(t, 30*time.Minute, MustGet[idp.Flow](container).FlowTTL())
}

func TestNew_OAuthRequiredWithoutDisableAuth(t *testing.T) {
	localEnv(t)

	container, err := New("local")
	require.NoError(t, err)

	err = container.Invoke(func(idp.Flow) {})
	assert.ErrorIs(t, dig.RootCause(err), errs.ErrClientIDRequired)
}

func TestProvideAuthorizer(t *testing.T) {
	ctx := zerolog.Nop().WithContext(context.Background())
	oauthConfig := &services.OAuthConfig{Provider: "google"}

	t.Run("disabled", func(t *testing.T) {
		authorizer, err := ProvideAuthorizer(ctx, &services.Config{}, oauthConfig)
		require.NoError(t, err)
		assert.Nil(t, authorizer)
	})

	t.Run("email and rego", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "signin.yaml")
		require.NoError(t, os.WriteFile(path, []byte("domains:\n  - example.com\n"), 0o600))

		authorizer, err := ProvideAuthorizer(ctx, &services.Config{AllowedEmail: "coach@example.com", PolicyFile: path}, oauthConfig)
		require.NoError(t, err)
		require.NotNil(t, authorizer)
	})

	t.Run("missing policy file", func(t *testing.T) {
		_, err := ProvideAuthorizer(ctx, &services.Config{PolicyFile: filepath.Join(t.TempDir(), "missing.yaml")}, oauthConfig)
		assert.Error(t, err)
	})
}

func TestProvideDirectory(t *testing.T) {
	ctx := zerolog.Nop().WithContext(context.Background())

	directory, err := ProvideDirectory(ctx, &services.Config{Directory: services.DirectoryMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &idp.MemoryDirectory{}, directory)

	_, err = ProvideDirectory(ctx, &services.Config{Directory: "postgres"}, nil)
	assert.ErrorIs(t, err, errs.ErrUnsupportedDirectory)
}

func TestProvideFlow(t *testing.T) {
	ctx := zerolog.Nop().WithContext(context.Background())
	dev := &services.OAuthConfig{Provider: "dev"}

	_, err := ProvideFlow(ctx, &services.Config{}, dev, nil, nil, 0)
	assert.ErrorIs(t, err, errs.ErrCallbackURLRequired)

	_, err = ProvideFlow(ctx, &services.Config{CallbackURL: "http://localhost:8080/oauth/callback"}, &services.OAuthConfig{Provider: "saml"}, nil, nil, 0)
	assert.ErrorIs(t, err, errs.ErrUnsupportedProvider)

	flow, err := ProvideFlow(ctx, &services.Config{CallbackURL: "http://localhost:8080/oauth/callback"}, dev, nil, idp.NewMemoryDirectory(), 0)
	require.NoError(t, err)
	assert.Equal(t, "dev", flow.Option().Type)
	assert.Equal(t, idp.DefaultFlowTTL, flow.FlowTTL())

	flow, err = ProvideFlow(ctx, &services.Config{CallbackURL: "http://localhost:8080/oauth/callback"}, dev, nil, nil, FlowTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, flow.FlowTTL())
}

func TestIsLocalDev(t *testing.T) {
	assert.True(t, isLocalDev("http://localhost:8080/oauth/callback"))
	assert.True(t, isLocalDev("http://127.0.0.1:8080/oauth/callback"))
	assert.False(t, isLocalDev("https://auth.example.com/oauth/callback"))
}
