package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/paysync/internal/app"
	mcpinternal "github.com/felixgeelhaar/paysync/internal/mcp"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/felixgeelhaar/paysync/pkg/observability"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cfg.Version).With("component", "mcp")

		container, err := app.NewContainer(ctx, cfg, logger, app.Options{})
		if err != nil {
			return err
		}
		defer container.Close()

		err = mcpinternal.Serve(ctx, cfg, mcpinternal.NewCLIApp(container), logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
