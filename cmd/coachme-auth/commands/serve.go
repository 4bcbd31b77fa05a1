package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/di"
	"github.com/savaki/coachme-auth/internal/server"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

// ServeCommand returns the serve command which hosts the sign-in endpoints.
func ServeCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the sign-in endpoints and GraphQL status API",
		Description: `Starts an HTTP server exposing:

  GET  /               current sign-in status
  GET  /login          start a sign-in with the identity provider
  GET  /oauth/callback provider redirect
  POST /logout         sign out
  POST /delete         delete the signed-in account
  POST /graphql        status query and session mutations

Examples:
  # Local development without AWS or an identity provider
  coachme-auth serve --disable-ssm --disable-auth

  # Against the dev environment's SSM parameters and secrets
  coachme-auth serve --env dev --callback-url https://auth.dev.example.com/oauth/callback`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   "8080",
				EnvVars: []string{"PORT"},
			},
			&cli.StringFlag{
				Name:    "callback-url",
				Usage:   "OAuth redirect URL; defaults to the configured value or http://localhost:{port}/oauth/callback",
				EnvVars: []string{"CALLBACK_URL"},
			},
			envFlag(),
			disableAuthFlag(),
			disableSSMFlag(),
		},
		Action: func(c *cli.Context) error {
			return serveAction(c, logger)
		},
	}
}

func serveAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context
	port := c.String("port")
	addr := fmt.Sprintf(":%s", port)

	callbackURL := c.String("callback-url")
	if callbackURL == "" {
		callbackURL = fmt.Sprintf("http://localhost:%s/oauth/callback", port)
	}

	container, err := newContainer(c, callbackURL)
	if err != nil {
		return err
	}

	srv, err := resolveServer(container)
	if err != nil {
		return err
	}

	logger.Info().
		Str("addr", addr).
		Str("env", c.String("env")).
		Str("callback_url", callbackURL).
		Bool("disable_auth", c.Bool("disable-auth")).
		Msg("Starting HTTP server")

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.LoggingMiddleware(*logger)(srv.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// resolveServer builds the server and everything it depends on.
func resolveServer(container di.Container) (*server.Server, error) {
	var srv *server.Server
	if err := container.Invoke(func(s *server.Server) { srv = s }); err != nil {
		return nil, fmt.Errorf("failed to build server: %w", err)
	}
	return srv, nil
}
