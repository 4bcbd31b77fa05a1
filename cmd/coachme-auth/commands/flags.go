package commands

import (
	"fmt"
	"os"

	"github.com/savaki/coachme-auth/internal/di"
	"github.com/urfave/cli/v2"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "env",
		Aliases: []string{"e"},
		Usage:   "Environment (dev, stg, or prd) - selects SSM parameters, secrets and tables",
		Value:   "dev",
		EnvVars: []string{"ENV"},
	}
}

func disableAuthFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "disable-auth",
		Usage:   "Use the dev identity provider instead of OIDC (development only)",
		EnvVars: []string{"DISABLE_AUTH"},
	}
}

func disableSSMFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "disable-ssm",
		Usage:   "Read configuration and OAuth client from environment variables instead of AWS",
		EnvVars: []string{"DISABLE_SSM"},
	}
}

// newContainer builds the container for the command's flags.
func newContainer(c *cli.Context, callbackURL string, opts ...di.Option) (di.Container, error) {
	if c.Bool("disable-ssm") {
		// read by the parameter store and OAuth providers
		if err := os.Setenv("DISABLE_SSM", "true"); err != nil {
			return nil, err
		}
	}

	opts = append([]di.Option{
		di.WithCallbackURL(callbackURL),
		di.WithDisableAuth(c.Bool("disable-auth")),
	}, opts...)

	container, err := di.New(c.String("env"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to setup DI container: %w", err)
	}
	return container, nil
}
