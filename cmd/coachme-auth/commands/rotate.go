package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/di"
	"github.com/savaki/coachme-auth/internal/services"
	"github.com/urfave/cli/v2"
)

// RotateKeysCommand returns the command that rotates the session key secret.
// Inside Lambda it serves as the secret's rotation function.
func RotateKeysCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "rotate-keys",
		Usage: "Rotate the session keys that sign the sign-in flow cookie",
		Description: `Adds a new 256-bit key to the session key secret, keeping the newest
` + fmt.Sprint(services.MaxSessionKeyVersions) + ` keys so cookies issued before the rotation still decode.

When AWS_LAMBDA_RUNTIME_API is set the command runs as the Secrets Manager
rotation function instead.

Examples:
  # Rotate the dev environment's configured secret
  coachme-auth rotate-keys --env dev

  # Cancel a rotation left pending by a failed run
  coachme-auth rotate-keys --env dev --cancel --version-id manual-1760000000`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "secret-id",
				Usage:   "Secret to rotate; defaults to the configured session token secret",
				EnvVars: []string{"SECRET_ID"},
			},
			&cli.BoolFlag{
				Name:  "cancel",
				Usage: "Cancel a pending rotation instead of rotating",
			},
			&cli.StringFlag{
				Name:  "version-id",
				Usage: "Version ID of the pending rotation to cancel",
			},
			envFlag(),
			disableSSMFlag(),
		},
		Action: func(c *cli.Context) error {
			return rotateKeysAction(c, logger)
		},
	}
}

func rotateKeysAction(c *cli.Context, logger *zerolog.Logger) error {
	container, err := newContainer(c, "")
	if err != nil {
		return err
	}

	var rotator *services.SessionKeyRotator
	if err := container.Invoke(func(client *secretsmanager.Client) {
		rotator = services.NewSessionKeyRotator(client)
	}); err != nil {
		return fmt.Errorf("failed to create Secrets Manager client: %w", err)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		lambdaLogger := logger.With().Str("lambda", "rotator").Logger()
		lambda.Start(func(ctx context.Context, event services.RotationEvent) error {
			ctx = lambdaLogger.WithContext(ctx)
			return rotator.HandleRotation(ctx, event)
		})
		return nil
	}

	ctx := c.Context
	secretID := c.String("secret-id")
	if secretID == "" {
		config, err := resolveConfig(container)
		if err != nil {
			return err
		}
		secretID = config.SessionTokenSecretName
	}

	if c.Bool("cancel") {
		versionID := c.String("version-id")
		if versionID == "" {
			return fmt.Errorf("--version-id is required with --cancel")
		}
		if err := rotator.CancelRotation(ctx, secretID, versionID); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Cancelled pending rotation %s of %s\n", versionID, secretID)
		return nil
	}

	token := fmt.Sprintf("manual-%d", time.Now().Unix())
	logger.Info().Str("secret_id", secretID).Str("version_id", token).Msg("Rotating session keys")
	if err := rotator.Rotate(ctx, secretID, token); err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, "Rotation completed successfully")
	return nil
}

func resolveConfig(container di.Container) (*services.Config, error) {
	var config *services.Config
	if err := container.Invoke(func(c *services.Config) { config = c }); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return config, nil
}
