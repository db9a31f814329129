package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/paysync/pkg/observability"
)

func registerCoreTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("cli.health").
		Description("Check dependency health").
		Handler(func(ctx context.Context, input struct{}) (any, error) {
			if app == nil {
				return nil, errors.New("app not initialized")
			}
			if app.Health == nil {
				return map[string]string{"status": string(observability.HealthStatusHealthy)}, nil
			}
			return app.Health.Check(ctx), nil
		})

	return nil
}
