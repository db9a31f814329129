package cli

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/paysync/adapter/api"
	appcontainer "github.com/felixgeelhaar/paysync/internal/app"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server that receives provider webhooks.

Also serves /health, /readyz and /metrics. When OUTBOX_PROCESSOR_ENABLED is
set, change notifications are relayed to RabbitMQ from the same process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := Logger()

		container, err := appcontainer.NewContainer(ctx, cfg, log, appcontainer.Options{Publisher: cfg.OutboxProcessorEnabled})
		if err != nil {
			return err
		}
		defer container.Close()

		handler := api.NewWebhookHandler(api.WebhookHandlerConfig{
			Events:          container.Dispatcher,
			SignatureHeader: cfg.WebhookSignatureHeader,
			Logger:          log,
			Metrics:         container.Metrics,
		})
		server := api.NewServer(api.ServerConfig{
			Addr:         cfg.HTTPAddr,
			WebhookPath:  cfg.WebhookPath,
			ReadTimeout:  cfg.HTTPReadTimeout,
			WriteTimeout: cfg.HTTPWriteTimeout,
			IdleTimeout:  api.DefaultServerConfig().IdleTimeout,
		}, handler, container.Health, container.Prometheus.Handler(), log)

		if container.OutboxProcessor != nil {
			go container.OutboxProcessor.Run(ctx)
		} else {
			log.Info("outbox processor disabled in webhook server")
		}

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	},
}

// loadConfig returns the app config when main loaded one, or loads it now.
func loadConfig() (*config.Config, error) {
	if a := GetApp(); a != nil && a.Config != nil {
		return a.Config, nil
	}
	return config.Load()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
