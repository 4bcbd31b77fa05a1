package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/caarlos0/env/v11"
	errs "github.com/savaki/coachme-auth/internal/errors"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// OAuthConfig represents OAuth/OIDC provider configuration.
// Supports multiple providers: Auth0, Google, any OIDC issuer.
type OAuthConfig struct {
	Provider     string `json:"provider"      env:"OAUTH_PROVIDER"`      // "auth0", "google" or "oidc"
	ClientID     string `json:"client_id"     env:"OAUTH_CLIENT_ID"`     // OAuth client ID
	ClientSecret string `json:"client_secret" env:"OAUTH_CLIENT_SECRET"` // OAuth client secret
	Domain       string `json:"domain"        env:"OAUTH_DOMAIN"`        // Auth0 tenant domain or OIDC issuer URL
}

func (c *OAuthConfig) validate() error {
	// Backward compatibility: default to auth0 if provider not specified
	if c.Provider == "" {
		c.Provider = "auth0"
	}
	switch c.Provider {
	case "auth0", "google", "oidc":
	default:
		return fmt.Errorf("%w: %s", errs.ErrUnsupportedProvider, c.Provider)
	}
	if c.ClientID == "" {
		return errs.ErrClientIDRequired
	}
	return nil
}

// OAuthConfigSource supplies the OAuth client configuration
type OAuthConfigSource interface {
	GetOAuthConfig(ctx context.Context) (*OAuthConfig, error)
}

type SecretsManagerService struct {
	client SecretsManagerAPI
	env    string
}

func NewSecretsManagerService(client SecretsManagerAPI, env string) *SecretsManagerService {
	return &SecretsManagerService{
		client: client,
		env:    env,
	}
}

// OAuthSecretName returns the secret holding the OAuth client for env
func OAuthSecretName(env string) string {
	return fmt.Sprintf("coachme-auth/%s/oauth", env)
}

// GetOAuthConfig retrieves OAuth provider configuration from AWS Secrets Manager.
func (s *SecretsManagerService) GetOAuthConfig(ctx context.Context) (*OAuthConfig, error) {
	secretName := OAuthSecretName(s.env)

	raw, err := s.GetSecret(ctx, secretName)
	if err != nil {
		return nil, err
	}

	var oauthConfig OAuthConfig
	if err := json.Unmarshal([]byte(raw), &oauthConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OAuth config: %w", err)
	}

	if err := oauthConfig.validate(); err != nil {
		return nil, fmt.Errorf("invalid OAuth config in %s: %w", secretName, err)
	}

	return &oauthConfig, nil
}

// GetSecret retrieves a secret value by path from AWS Secrets Manager
func (s *SecretsManagerService) GetSecret(ctx context.Context, secretPath string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretPath, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretPath)
	}

	return *result.SecretString, nil
}

// EnvOAuthConfigSource reads the OAuth client from OAUTH_* environment variables
type EnvOAuthConfigSource struct {
	environ map[string]string // overrides the process environment when set
}

func NewEnvOAuthConfigSource() *EnvOAuthConfigSource {
	return &EnvOAuthConfigSource{}
}

func (e *EnvOAuthConfigSource) GetOAuthConfig(ctx context.Context) (*OAuthConfig, error) {
	opts := env.Options{}
	if e.environ != nil {
		opts.Environment = e.environ
	}

	var oauthConfig OAuthConfig
	if err := env.ParseWithOptions(&oauthConfig, opts); err != nil {
		return nil, fmt.Errorf("failed to parse OAuth env config: %w", err)
	}
	if err := oauthConfig.validate(); err != nil {
		return nil, err
	}
	return &oauthConfig, nil
}
