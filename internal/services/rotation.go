package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	errs "github.com/savaki/coachme-auth/internal/errors"
)

const (
	// MaxSessionKeyVersions bounds how many keys a rotation keeps. Older
	// keys still decode cookies issued before the last rotations.
	MaxSessionKeyVersions = 3

	stageCurrent = "AWSCURRENT"
	stagePending = "AWSPENDING"
)

// Rotation steps as sent by Secrets Manager.
const (
	StepCreateSecret = "createSecret"
	StepSetSecret    = "setSecret"
	StepTestSecret   = "testSecret"
	StepFinishSecret = "finishSecret"
)

// SecretsRotationAPI is the subset of the Secrets Manager client used to
// rotate session keys.
type SecretsRotationAPI interface {
	SecretsManagerAPI
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
}

// RotationEvent is the payload Secrets Manager sends a rotation function.
type RotationEvent struct {
	Step               string `json:"Step"`
	SecretId           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
}

// SessionKeyRotator rotates the session key secret read by SessionKeyService.
// The secret holds a JSON array of SecretVersion, newest first.
type SessionKeyRotator struct {
	client SecretsRotationAPI
	now    func() time.Time
}

func NewSessionKeyRotator(client SecretsRotationAPI) *SessionKeyRotator {
	return &SessionKeyRotator{
		client: client,
		now:    time.Now,
	}
}

// HandleRotation runs a single rotation step.
func (r *SessionKeyRotator) HandleRotation(ctx context.Context, event RotationEvent) error {
	switch event.Step {
	case StepCreateSecret:
		return r.createSecret(ctx, event)
	case StepSetSecret:
		// keys live only in the secret
		return nil
	case StepTestSecret:
		return r.testSecret(ctx, event)
	case StepFinishSecret:
		return r.finishSecret(ctx, event)
	default:
		return fmt.Errorf("unknown rotation step: %s", event.Step)
	}
}

// Rotate runs every step in order, as Secrets Manager would.
func (r *SessionKeyRotator) Rotate(ctx context.Context, secretID, token string) error {
	for _, step := range []string{StepCreateSecret, StepSetSecret, StepTestSecret, StepFinishSecret} {
		event := RotationEvent{
			Step:               step,
			SecretId:           secretID,
			ClientRequestToken: token,
		}
		if err := r.HandleRotation(ctx, event); err != nil {
			return fmt.Errorf("%s step failed: %w", step, err)
		}
	}
	return nil
}

// CancelRotation removes the pending stage from versionID.
func (r *SessionKeyRotator) CancelRotation(ctx context.Context, secretID, versionID string) error {
	_, err := r.client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            aws.String(secretID),
		VersionStage:        aws.String(stagePending),
		RemoveFromVersionId: aws.String(versionID),
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s stage: %w", stagePending, err)
	}
	return nil
}

func (r *SessionKeyRotator) createSecret(ctx context.Context, event RotationEvent) error {
	logger := zerolog.Ctx(ctx)

	key := make([]byte, SessionKeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate session key: %w", err)
	}

	versions := []SecretVersion{{
		Secret:    base64.StdEncoding.EncodeToString(key),
		Timestamp: r.now().UTC().Format(time.RFC3339),
	}}
	for i, version := range r.currentVersions(ctx, event.SecretId) {
		if _, err := decodeSessionKey(version); err != nil {
			logger.Warn().Err(err).Int("index", i).Msg("Discarding invalid session key version")
			continue
		}
		versions = append(versions, version)
	}
	if len(versions) > MaxSessionKeyVersions {
		versions = versions[:MaxSessionKeyVersions]
	}

	secretJSON, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	logger.Info().Int("version_count", len(versions)).Msg("Creating pending session key secret")

	_, err = r.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(event.SecretId),
		SecretString:       aws.String(string(secretJSON)),
		ClientRequestToken: aws.String(event.ClientRequestToken),
		VersionStages:      []string{stagePending},
	})
	if err != nil {
		return fmt.Errorf("failed to put secret value: %w", err)
	}
	return nil
}

// currentVersions reads the current secret. A missing, empty or corrupt
// secret yields no versions so rotation starts fresh.
func (r *SessionKeyRotator) currentVersions(ctx context.Context, secretID string) []SecretVersion {
	logger := zerolog.Ctx(ctx)

	output, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get current secret - starting fresh")
		return nil
	}
	if output.SecretString == nil || *output.SecretString == "" {
		logger.Warn().Msg("Secret is empty - starting fresh")
		return nil
	}

	var versions []SecretVersion
	if err := json.Unmarshal([]byte(*output.SecretString), &versions); err != nil {
		logger.Warn().Err(err).Msg("Current secret is corrupt - starting fresh")
		return nil
	}
	return versions
}

func (r *SessionKeyRotator) testSecret(ctx context.Context, event RotationEvent) error {
	output, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(event.SecretId),
		VersionId:    aws.String(event.ClientRequestToken),
		VersionStage: aws.String(stagePending),
	})
	if err != nil {
		return fmt.Errorf("failed to get pending secret: %w", err)
	}
	if output.SecretString == nil {
		return errors.New("pending secret has no string value")
	}

	var versions []SecretVersion
	if err := json.Unmarshal([]byte(*output.SecretString), &versions); err != nil {
		return fmt.Errorf("pending secret is not valid JSON: %w", err)
	}
	if len(versions) == 0 {
		return errs.ErrNoSessionKeys
	}
	if _, err := decodeSessionKey(versions[0]); err != nil {
		return fmt.Errorf("pending session key: %w", err)
	}
	return nil
}

func (r *SessionKeyRotator) finishSecret(ctx context.Context, event RotationEvent) error {
	current, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(event.SecretId),
		VersionStage: aws.String(stageCurrent),
	})
	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:        aws.String(event.SecretId),
		VersionStage:    aws.String(stageCurrent),
		MoveToVersionId: aws.String(event.ClientRequestToken),
	}
	if err == nil && current.VersionId != nil {
		if *current.VersionId == event.ClientRequestToken {
			return nil
		}
		input.RemoveFromVersionId = current.VersionId
	}

	if _, err := r.client.UpdateSecretVersionStage(ctx, input); err != nil {
		return fmt.Errorf("failed to update version stage: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("version_id", event.ClientRequestToken).Msg("Session key rotation finished")
	return nil
}
