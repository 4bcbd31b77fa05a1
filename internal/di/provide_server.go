package di

import (
	"github.com/graph-gophers/graphql-go"
	"github.com/savaki/coachme-auth/internal/auth"
	"github.com/savaki/coachme-auth/internal/idp"
	"github.com/savaki/coachme-auth/internal/server"
	"github.com/savaki/coachme-auth/internal/services"
	"go.uber.org/dig"
)

// ServerInput collects the server's dependencies.
type ServerInput struct {
	dig.In

	Coordinator *auth.Coordinator
	Flow        idp.Flow
	Schema      *graphql.Schema
	SessionKeys [][]byte
	Config      *services.Config
}

func ProvideServer(input ServerInput) (*server.Server, error) {
	return server.New(server.Input{
		Coordinator: input.Coordinator,
		Flow:        input.Flow,
		Schema:      input.Schema,
		SessionKeys: input.SessionKeys,
		Secure:      !isLocalDev(input.Config.CallbackURL),
		FlowTTL:     input.Flow.FlowTTL(),
	})
}
