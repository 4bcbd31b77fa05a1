package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/services"
)

// ssmDisabled reports local mode: configuration and secrets come from the
// environment instead of AWS.
func ssmDisabled() bool {
	return os.Getenv("DISABLE_SSM") == "true"
}

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if ssmDisabled() {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation
// Uses SSM Parameter Store in AWS, falls back to environment variables when disabled
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env string) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Info().Msg("Using environment variables for configuration (SSM disabled)")
		return services.NewEnvParameterStore(env)
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, env)
}

// ProvideAppConfig loads application configuration from Parameter Store or environment variables
func ProvideAppConfig(ctx context.Context, store services.ParameterStore, callbackURL CallbackURL) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if callbackURL != "" {
		config.CallbackURL = string(callbackURL)
	}

	logger.Info().
		Str("directory", config.Directory).
		Str("callback_url", config.CallbackURL).
		Bool("has_allowed_email", config.AllowedEmail != "").
		Bool("has_policy_file", config.PolicyFile != "").
		Msg("Configuration loaded successfully")

	return config, nil
}

// ProvideOAuthConfigSource reads the OAuth client from Secrets Manager, or
// from OAUTH_* variables when SSM is disabled.
func ProvideOAuthConfigSource(client *secretsmanager.Client, env string) services.OAuthConfigSource {
	if ssmDisabled() {
		return services.NewEnvOAuthConfigSource()
	}
	return services.NewSecretsManagerService(client, env)
}
