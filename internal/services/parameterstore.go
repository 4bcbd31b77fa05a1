package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/caarlos0/env/v11"
	"github.com/savaki/coachme-auth/internal/dao/accountdao"
)

const (
	DirectoryDynamoDB = "dynamodb"
	DirectoryMemory   = "memory"
)

// Config holds all application configuration values from Parameter Store
type Config struct {
	AllowedEmail           string `env:"ALLOWED_EMAIL"`
	PolicyFile             string `env:"POLICY_FILE"`
	Directory              string `env:"DIRECTORY"`
	AccountsTable          string `env:"ACCOUNTS_TABLE"`
	SessionTokenSecretName string `env:"SESSION_TOKEN_SECRET_NAME"`
	CallbackURL            string `env:"CALLBACK_URL"`
	DevEmail               string `env:"DEV_EMAIL"`
}

// AuthorizationEnabled reports whether any sign-in policy is configured
func (c *Config) AuthorizationEnabled() bool {
	return c.AllowedEmail != "" || c.PolicyFile != ""
}

func (c *Config) setDefaults(env, directory string) {
	if c.Directory == "" {
		c.Directory = directory
	}
	if c.AccountsTable == "" {
		c.AccountsTable = accountdao.TableName(env)
	}
	if c.SessionTokenSecretName == "" {
		c.SessionTokenSecretName = fmt.Sprintf("coachme-auth/%s/session-token", env)
	}
	if c.CallbackURL == "" {
		c.CallbackURL = "http://localhost:8080/oauth/callback"
	}
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all application configuration from Parameter Store
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMAPI is the subset of the SSM client the parameter store uses
type SSMAPI interface {
	ssm.GetParametersByPathAPIClient
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client SSMAPI
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client SSMAPI, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads all parameters under /{env}/coachme-auth
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := fmt.Sprintf("/%s/coachme-auth", s.env)

	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           &path,
		Recursive:      boolPtr(true),
		WithDecryption: boolPtr(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	get := func(name string) string {
		return strings.TrimSpace(params[path+"/"+name])
	}

	config := &Config{
		AllowedEmail:           get("allowed-email"),
		PolicyFile:             get("policy-file"),
		Directory:              get("directory"),
		AccountsTable:          get("accounts-table"),
		SessionTokenSecretName: get("session-token-secret-name"),
		CallbackURL:            get("callback-url"),
	}
	config.setDefaults(s.env, DirectoryDynamoDB)

	return config, nil
}

// EnvParameterStore implements ParameterStore using environment variables
// This is a NoOp implementation for local development without AWS connection
type EnvParameterStore struct {
	env     string
	environ map[string]string // overrides the process environment when set
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env: env,
	}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	if e.environ != nil {
		return e.environ[name], nil
	}
	return os.Getenv(name), nil
}

// GetConfig loads all application configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	opts := env.Options{}
	if e.environ != nil {
		opts.Environment = e.environ
	}

	var config Config
	if err := env.ParseWithOptions(&config, opts); err != nil {
		return nil, fmt.Errorf("failed to parse env config: %w", err)
	}
	config.setDefaults(e.env, DirectoryMemory)
	return &config, nil
}

func boolPtr(b bool) *bool {
	return &b
}
