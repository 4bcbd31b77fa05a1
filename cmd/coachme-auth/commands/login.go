package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/savaki/coachme-auth/internal/auth"
	"github.com/savaki/coachme-auth/internal/di"
	"github.com/savaki/coachme-auth/internal/idp"
	"github.com/savaki/coachme-auth/internal/server"
	"github.com/urfave/cli/v2"
)

// LoginCommand returns the login command which signs in through the system
// browser and reports the result on stdout.
func LoginCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in through the system browser",
		Description: `Starts a loopback server, opens the browser at its /login page and waits
for the identity provider to redirect back.

The provider must accept http://127.0.0.1:{port}/oauth/callback as a
redirect URL.

Examples:
  # Sign in with the dev environment's OAuth client
  coachme-auth login --env dev

  # Print the URL instead of opening a browser
  coachme-auth login --env dev --no-browser`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Loopback port for the provider redirect",
				Value: 8085,
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the sign-in URL instead of opening it",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the sign-in to finish",
				Value: idp.DefaultFlowTTL,
			},
			envFlag(),
			disableAuthFlag(),
			disableSSMFlag(),
		},
		Action: func(c *cli.Context) error {
			return loginAction(c, logger)
		},
	}
}

func loginAction(c *cli.Context, logger *zerolog.Logger) error {
	base := fmt.Sprintf("http://127.0.0.1:%d", c.Int("port"))

	// the flow stays open exactly as long as the command waits for it
	container, err := newContainer(c, base+"/oauth/callback", di.WithFlowTTL(c.Duration("timeout")))
	if err != nil {
		return err
	}

	outcomes := make(chan server.Outcome, 1)
	report := func(outcome server.Outcome) {
		select {
		case outcomes <- outcome:
		default:
		}
	}

	var srv *server.Server
	err = container.Invoke(func(input di.ServerInput) error {
		s, err := server.New(server.Input{
			Coordinator: input.Coordinator,
			Flow:        input.Flow,
			Schema:      input.Schema,
			SessionKeys: input.SessionKeys,
			FlowTTL:     input.Flow.FlowTTL(),
			OnOutcome:   report,
		})
		srv = s
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", c.Int("port")))
	if err != nil {
		return fmt.Errorf("failed to listen on loopback: %w", err)
	}

	httpServer := &http.Server{
		Handler: server.LoggingMiddleware(*logger)(
			server.RecoverInvariant(func(v *auth.InvariantViolation) {
				report(server.Outcome{Err: v})
			})(srv.Handler()),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Loopback server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	loginURL := base + "/login"
	if c.Bool("no-browser") {
		fmt.Fprintf(c.App.Writer, "Open %s to sign in\n", loginURL)
	} else if err := browser.OpenURL(loginURL); err != nil {
		logger.Warn().Err(err).Msg("Failed to open browser")
		fmt.Fprintf(c.App.Writer, "Open %s to sign in\n", loginURL)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	select {
	case outcome := <-outcomes:
		fmt.Fprintln(c.App.Writer, outcome.Message())
		return outcome.Err
	case <-ctx.Done():
		return fmt.Errorf("sign-in did not finish: %w", ctx.Err())
	}
}
