package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/auth"
	"github.com/savaki/coachme-auth/internal/authz"
	"github.com/savaki/coachme-auth/internal/dao/accountdao"
	errs "github.com/savaki/coachme-auth/internal/errors"
	"github.com/savaki/coachme-auth/internal/idp"
	"github.com/savaki/coachme-auth/internal/services"
)

const devProvider = "dev"

// isLocalDev detects a callback on http://localhost or http://127.0.0.1.
func isLocalDev(callbackURL string) bool {
	return strings.HasPrefix(callbackURL, "http://localhost") ||
		strings.HasPrefix(callbackURL, "http://127.0.0.1")
}

// ProvideOAuthConfig loads the OAuth client. With auth disabled no client
// is needed and the dev provider is selected.
func ProvideOAuthConfig(ctx context.Context, source services.OAuthConfigSource, disableAuth DisableAuth) (*services.OAuthConfig, error) {
	logger := zerolog.Ctx(ctx)

	if bool(disableAuth) {
		logger.Warn().Msg("⚠️  Authentication is DISABLED - using dev provider (development only)")
		return &services.OAuthConfig{Provider: devProvider}, nil
	}

	oauthConfig, err := source.GetOAuthConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}
	return oauthConfig, nil
}

func ProvideSessionKeys(ctx context.Context, client *secretsmanager.Client, config *services.Config) ([][]byte, error) {
	logger := zerolog.Ctx(ctx)

	if ssmDisabled() {
		logger.Warn().Msg("Using ephemeral session key for local development only")
		return services.NewEphemeralSessionKeys().GetSessionKeys(ctx)
	}

	keys, err := services.NewSessionKeyService(ctx, client, config.SessionTokenSecretName).GetSessionKeys(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch session keys from Secrets Manager")

		// Deployed hosts must fail fast; ephemeral keys would invalidate flow
		// cookies on every restart
		if !isLocalDev(config.CallbackURL) {
			return nil, fmt.Errorf("session keys required outside local development: %w", err)
		}

		logger.Warn().Msg("Using ephemeral session key for local development only")
		return services.NewEphemeralSessionKeys().GetSessionKeys(ctx)
	}
	return keys, nil
}

func ProvideAuthorizer(ctx context.Context, config *services.Config, oauthConfig *services.OAuthConfig) (*authz.Authorizer, error) {
	logger := zerolog.Ctx(ctx)

	if !config.AuthorizationEnabled() {
		logger.Info().Msg("Sign-in authorization disabled - all authenticated users allowed")
		return nil, nil
	}

	var policies []authz.Policy
	if config.AllowedEmail != "" {
		logger.Info().
			Str("allowed_email", config.AllowedEmail).
			Str("provider_type", oauthConfig.Provider).
			Msg("Email authorization enabled")
		policies = append(policies, &authz.EmailPolicy{
			AllowedEmail: config.AllowedEmail,
			ProviderType: oauthConfig.Provider,
		})
	}

	if config.PolicyFile != "" {
		data, err := authz.LoadPolicyData(config.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy, err := authz.NewRegoPolicy(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("failed to create sign-in policy: %w", err)
		}
		logger.Info().
			Str("policy_file", config.PolicyFile).
			Int("emails", len(data.Emails)).
			Int("domains", len(data.Domains)).
			Msg("Rego sign-in policy enabled")
		policies = append(policies, policy)
	}

	return authz.NewAuthorizer(true, policies...), nil
}

func ProvideDirectory(ctx context.Context, config *services.Config, client *dynamodb.Client) (idp.Directory, error) {
	logger := zerolog.Ctx(ctx)

	switch config.Directory {
	case services.DirectoryMemory:
		logger.Info().Msg("Using in-memory account directory")
		return idp.NewMemoryDirectory(), nil
	case services.DirectoryDynamoDB:
		logger.Info().Str("table", config.AccountsTable).Msg("Using DynamoDB account directory")
		return idp.NewDynamoDirectory(accountdao.New(client, config.AccountsTable)), nil
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedDirectory, config.Directory)
	}
}

func ProvideFlow(ctx context.Context, config *services.Config, oauthConfig *services.OAuthConfig, authorizer *authz.Authorizer, directory idp.Directory, ttl FlowTTL) (idp.Flow, error) {
	if config.CallbackURL == "" {
		return nil, errs.ErrCallbackURLRequired
	}

	if oauthConfig.Provider == devProvider {
		email := config.DevEmail
		if email == "" {
			email = config.AllowedEmail
		}
		if email == "" {
			email = "dev@localhost"
		}
		return idp.NewDevProvider(email, config.CallbackURL, directory).WithFlowTTL(time.Duration(ttl)), nil
	}

	issuer, err := idp.NewIssuer(oauthConfig.Provider, oauthConfig.Domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnsupportedProvider, err)
	}

	provider, err := idp.NewOIDCProvider(ctx, idp.OIDCProviderInput{
		Issuer:       issuer,
		ClientID:     oauthConfig.ClientID,
		ClientSecret: oauthConfig.ClientSecret,
		CallbackURL:  config.CallbackURL,
		Authorizer:   authorizer,
		Directory:    directory,
		FlowTTL:      time.Duration(ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}
	return provider, nil
}

func ProvideCoordinator(flow idp.Flow) *auth.Coordinator {
	return auth.NewCoordinator(flow)
}
