package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/paysync/adapter/cli"
	cliAccount "github.com/felixgeelhaar/paysync/adapter/cli/account"
	cliBilling "github.com/felixgeelhaar/paysync/adapter/cli/billing"
	"github.com/felixgeelhaar/paysync/adapter/cli/mcp"
	"github.com/felixgeelhaar/paysync/internal/app"
	mcpinternal "github.com/felixgeelhaar/paysync/internal/mcp"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/felixgeelhaar/paysync/pkg/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		// In development without .env, use defaults
		observability.LoggerFor("development", "warn", "text", "").Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development", LogLevel: "debug"}
	}

	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cfg.Version)
	cli.SetLogger(logger)

	// serve, migrate and mcp serve open their own connections
	cliApp := cli.NewApp(cfg, nil, nil, nil)
	if needsContainer(os.Args[1:]) {
		container, err := app.NewContainer(ctx, cfg, logger, app.Options{})
		if err != nil {
			if !cfg.IsDevelopment() {
				logger.Error("failed to initialize container", "error", err)
				os.Exit(1)
			}
			logger.Warn("failed to initialize container, running in limited mode", "error", err)
		} else {
			defer container.Close()
			cliApp = mcpinternal.NewCLIApp(container)
		}
	}
	cli.SetApp(cliApp)

	cli.AddCommand(cliBilling.Cmd)
	cli.AddCommand(cliAccount.Cmd)
	cli.AddCommand(mcp.Cmd)

	cli.Execute(ctx)
}

func needsContainer(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "serve", "migrate", "mcp", "version", "help", "-h", "--help":
		return false
	}
	return true
}
