package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	errs "github.com/savaki/coachme-auth/internal/errors"
)

// SecretVersion represents a single rotated secret version
type SecretVersion struct {
	Secret    string `json:"secret"`
	Timestamp string `json:"timestamp"`
}

// SessionKeySize is the length of each session key: 32 bytes for AES-256.
const SessionKeySize = 32

// decodeSessionKey decodes version and checks its length.
func decodeSessionKey(version SecretVersion) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(version.Secret)
	if err != nil {
		return nil, fmt.Errorf("secret is not valid base64: %w", err)
	}
	if len(decoded) != SessionKeySize {
		return nil, fmt.Errorf("secret has invalid length %d, expected %d", len(decoded), SessionKeySize)
	}
	return decoded, nil
}

// SessionKeySource supplies the keys used to sign and encrypt the flow cookie
type SessionKeySource interface {
	GetSessionKeys(ctx context.Context) ([][]byte, error)
}

// SessionKeyService provides session encryption keys from Secrets Manager
type SessionKeyService struct {
	client     SecretsManagerAPI
	secretName string
	onceFunc   func() ([][]byte, error)
}

// NewSessionKeyService creates a new session key service
func NewSessionKeyService(ctx context.Context, client SecretsManagerAPI, secretName string) *SessionKeyService {
	s := &SessionKeyService{
		client:     client,
		secretName: secretName,
	}

	// Keys are fetched once per process; restarts pick up rotations
	ctx = context.WithoutCancel(ctx)
	s.onceFunc = sync.OnceValues(func() ([][]byte, error) {
		return s.fetchSessionKeys(ctx)
	})

	return s
}

// GetSessionKeys returns the current session encryption keys, most recent first.
func (s *SessionKeyService) GetSessionKeys(ctx context.Context) ([][]byte, error) {
	return s.onceFunc()
}

func (s *SessionKeyService) fetchSessionKeys(ctx context.Context) ([][]byte, error) {
	logger := zerolog.Ctx(ctx)

	logger.Info().Str("secret_name", s.secretName).Msg("Fetching session keys from Secrets Manager")

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", s.secretName, err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", s.secretName)
	}

	// Parse the secret JSON (array of versions)
	var versions []SecretVersion
	if err := json.Unmarshal([]byte(*result.SecretString), &versions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret versions: %w", err)
	}

	keys := make([][]byte, 0, len(versions))
	for i, version := range versions {
		key, err := decodeSessionKey(version)
		if err != nil {
			logger.Warn().
				Int("index", i).
				Str("timestamp", version.Timestamp).
				Err(err).
				Msg("Skipping secret version")
			continue
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w in secret %s", errs.ErrNoSessionKeys, s.secretName)
	}

	logger.Info().Int("key_count", len(keys)).Msg("Successfully loaded session keys")

	return keys, nil
}

// EphemeralSessionKeys generates one random key per process. Flow cookies
// do not survive a restart.
type EphemeralSessionKeys struct {
	onceFunc func() ([][]byte, error)
}

func NewEphemeralSessionKeys() *EphemeralSessionKeys {
	return &EphemeralSessionKeys{
		onceFunc: sync.OnceValues(func() ([][]byte, error) {
			key := make([]byte, SessionKeySize)
			if _, err := rand.Read(key); err != nil {
				return nil, fmt.Errorf("failed to generate session key: %w", err)
			}
			return [][]byte{key}, nil
		}),
	}
}

func (e *EphemeralSessionKeys) GetSessionKeys(ctx context.Context) ([][]byte, error) {
	return e.onceFunc()
}
