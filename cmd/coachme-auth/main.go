package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/savaki/coachme-auth/cmd/coachme-auth/commands"
	"github.com/savaki/coachme-auth/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "coachme-auth",
		Usage: "Sign-in service for the coaching app",
		Description: `Runs the sign-in flow against an OpenID Connect provider.

This tool provides commands for:
  - Serving the sign-in endpoints and GraphQL status API
  - Signing in from the terminal through the system browser
  - Rotating the session keys that sign the flow cookie`,
		Commands: []*cli.Command{
			commands.ServeCommand(&logger),
			commands.LoginCommand(&logger),
			commands.RotateKeysCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
