package mcp

import (
	"github.com/felixgeelhaar/paysync/adapter/cli"
	"github.com/felixgeelhaar/paysync/internal/app"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container) *cli.App {
	cliApp := cli.NewApp(
		container.Config,
		container.Dispatcher,
		container.BillingService,
		container.AccountService,
	)

	if container.Verifier != nil {
		cliApp.SetVerifier(container.Verifier)
	}
	if container.ProviderClient != nil {
		cliApp.SetProvider(container.ProviderClient)
	}
	cliApp.SetHealth(container.Health)

	return cliApp
}
