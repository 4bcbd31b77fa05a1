package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stagedSecrets tracks one secret's versions and their staging labels.
type stagedSecrets struct {
	values map[string]string // version id -> secret string
	stages map[string]string // stage -> version id
}

func newStagedSecrets(current string) *stagedSecrets {
	s := &stagedSecrets{values: map[string]string{}, stages: map[string]string{}}
	if current != "" {
		s.values["v0"] = current
		s.stages[stageCurrent] = "v0"
	}
	return s
}

func (s *stagedSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	stage := stageCurrent
	if params.VersionStage != nil {
		stage = *params.VersionStage
	}
	id, ok := s.stages[stage]
	if !ok || (params.VersionId != nil && *params.VersionId != id) {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(s.values[id]),
		VersionId:    aws.String(id),
	}, nil
}

func (s *stagedSecrets) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	id := *params.ClientRequestToken
	s.values[id] = *params.SecretString
	for _, stage := range params.VersionStages {
		s.stages[stage] = id
	}
	return &secretsmanager.PutSecretValueOutput{VersionId: aws.String(id)}, nil
}

func (s *stagedSecrets) UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error) {
	stage := *params.VersionStage
	if params.RemoveFromVersionId != nil {
		if s.stages[stage] != *params.RemoveFromVersionId {
			return nil, errors.New("InvalidParameterException")
		}
		delete(s.stages, stage)
	}
	if params.MoveToVersionId != nil {
		if _, ok := s.stages[stage]; ok {
			return nil, errors.New("InvalidParameterException: stage still attached")
		}
		s.stages[stage] = *params.MoveToVersionId
		if s.stages[stagePending] == *params.MoveToVersionId {
			delete(s.stages, stagePending)
		}
	}
	return &secretsmanager.UpdateSecretVersionStageOutput{}, nil
}

func encodeVersions(t *testing.T, versions ...SecretVersion) string {
	data, err := json.Marshal(versions)
	require.NoError(t, err)
	return string(data)
}

func keyVersion(fill byte, timestamp string) SecretVersion {
	key := make([]byte, SessionKeySize)
	for i := range key {
		key[i] = fill
	}
	return SecretVersion{Secret: base64.StdEncoding.EncodeToString(key), Timestamp: timestamp}
}

func TestSessionKeyRotator_Rotate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		current  string
		wantKeys int
	}{
		{
			name:     "no secret yet",
			wantKeys: 1,
		},
		{
			name:     "keeps existing keys",
			current:  encodeVersions(t, keyVersion(1, "2026-02-01T00:00:00Z")),
			wantKeys: 2,
		},
		{
			name: "drops the oldest beyond the limit",
			current: encodeVersions(t,
				keyVersion(1, "2026-02-01T00:00:00Z"),
				keyVersion(2, "2026-01-01T00:00:00Z"),
				keyVersion(3, "2025-12-01T00:00:00Z"),
			),
			wantKeys: MaxSessionKeyVersions,
		},
		{
			name: "discards invalid versions",
			current: encodeVersions(t,
				SecretVersion{Secret: "not base64!"},
				SecretVersion{Secret: base64.StdEncoding.EncodeToString([]byte("short"))},
				keyVersion(1, "2026-02-01T00:00:00Z"),
			),
			wantKeys: 2,
		},
		{
			name:     "corrupt secret starts fresh",
			current:  "{",
			wantKeys: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newStagedSecrets(tt.current)
			rotator := NewSessionKeyRotator(client)
			rotator.now = func() time.Time { return now }

			require.NoError(t, rotator.Rotate(ctx, "coachme-auth/dev/session-token", "rotation-1"))

			assert.Equal(t, "rotation-1", client.stages[stageCurrent])
			assert.NotContains(t, client.stages, stagePending)

			keys, err := NewSessionKeyService(ctx, client, "coachme-auth/dev/session-token").GetSessionKeys(ctx)
			require.NoError(t, err)
			assert.Len(t, keys, tt.wantKeys)

			var versions []SecretVersion
			require.NoError(t, json.Unmarshal([]byte(client.values["rotation-1"]), &versions))
			assert.Equal(t, "2026-03-01T12:00:00Z", versions[0].Timestamp)
		})
	}
}

func TestSessionKeyRotator_NewKeyComesFirst(t *testing.T) {
	ctx := context.Background()
	previous := keyVersion(7, "2026-02-01T00:00:00Z")
	client := newStagedSecrets(encodeVersions(t, previous))

	require.NoError(t, NewSessionKeyRotator(client).Rotate(ctx, "secret", "rotation-1"))

	keys, err := NewSessionKeyService(ctx, client, "secret").GetSessionKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	old, err := base64.StdEncoding.DecodeString(previous.Secret)
	require.NoError(t, err)
	assert.NotEqual(t, old, keys[0])
	assert.Equal(t, old, keys[1])
}

func TestSessionKeyRotator_FinishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := newStagedSecrets("")
	rotator := NewSessionKeyRotator(client)

	require.NoError(t, rotator.Rotate(ctx, "secret", "rotation-1"))
	require.NoError(t, rotator.HandleRotation(ctx, RotationEvent{
		Step:               StepFinishSecret,
		SecretId:           "secret",
		ClientRequestToken: "rotation-1",
	}))
	assert.Equal(t, "rotation-1", client.stages[stageCurrent])
}

func TestSessionKeyRotator_TestSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("no pending version", func(t *testing.T) {
		err := NewSessionKeyRotator(newStagedSecrets("")).HandleRotation(ctx, RotationEvent{
			Step:               StepTestSecret,
			SecretId:           "secret",
			ClientRequestToken: "rotation-1",
		})
		assert.Error(t, err)
	})

	t.Run("invalid pending key", func(t *testing.T) {
		client := newStagedSecrets("")
		client.values["rotation-1"] = encodeVersions(t, SecretVersion{Secret: "AAAA"})
		client.stages[stagePending] = "rotation-1"

		err := NewSessionKeyRotator(client).HandleRotation(ctx, RotationEvent{
			Step:               StepTestSecret,
			SecretId:           "secret",
			ClientRequestToken: "rotation-1",
		})
		assert.ErrorContains(t, err, "invalid length")
	})
}

func TestSessionKeyRotator_UnknownStep(t *testing.T) {
	err := NewSessionKeyRotator(newStagedSecrets("")).HandleRotation(context.Background(), RotationEvent{Step: "rollback"})
	assert.ErrorContains(t, err, "unknown rotation step")
}

func TestSessionKeyRotator_CancelRotation(t *testing.T) {
	ctx := context.Background()
	client := newStagedSecrets(encodeVersions(t, keyVersion(1, "")))
	rotator := NewSessionKeyRotator(client)

	require.NoError(t, rotator.HandleRotation(ctx, RotationEvent{
		Step:               StepCreateSecret,
		SecretId:           "secret",
		ClientRequestToken: "rotation-1",
	}))
	require.Equal(t, "rotation-1", client.stages[stagePending])

	require.NoError(t, rotator.CancelRotation(ctx, "secret", "rotation-1"))
	assert.NotContains(t, client.stages, stagePending)
	assert.Equal(t, "v0", client.stages[stageCurrent])

	assert.Error(t, rotator.CancelRotation(ctx, "secret", "rotation-1"))
}
