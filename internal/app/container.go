// Package app wires the paysync components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	billingApp "github.com/felixgeelhaar/paysync/internal/billing/application"
	billingDomain "github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/billing/infrastructure/lock"
	billingPersistence "github.com/felixgeelhaar/paysync/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/paysync/internal/billing/infrastructure/provider"
	"github.com/felixgeelhaar/paysync/internal/billing/infrastructure/signature"
	sharedApplication "github.com/felixgeelhaar/paysync/internal/shared/application"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/felixgeelhaar/paysync/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// Options select the optional parts of the container.
type Options struct {
	// Publisher connects to RabbitMQ for the outbox processor.
	Publisher bool
	// SkipMigrations leaves the schema untouched.
	SkipMigrations bool
}

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Observability
	Metrics    observability.Metrics
	Prometheus *observability.PrometheusMetrics
	Health     *observability.HealthRegistry

	// Repositories
	SubscriptionRepo billingPersistence.SubscriptionStore
	OutboxRepo       outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Publishers
	EventPublisher eventbus.Publisher

	// Billing
	Plans          billingDomain.PlanResolver
	Verifier       *signature.Verifier
	Locker         billingApp.Locker
	ProviderClient *provider.Client
	Dispatcher     *billingApp.Dispatcher
	BillingService *billingApp.Service
	AccountService *billingApp.AccountService

	// Outbox Processor
	OutboxProcessor *outbox.Processor
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config: cfg,
		Logger: logger,
		Health: observability.NewHealthRegistry(),
	}

	c.Prometheus = observability.NewPrometheusMetrics("")
	c.Prometheus.OnError(func(name string, err error) {
		logger.Warn("metric registration failed", "metric", name, "error", err)
	})
	c.Metrics = c.Prometheus

	plans, err := NewPlanResolver(cfg)
	if err != nil {
		return nil, err
	}
	c.Plans = plans
	if plans.Prices.Len() == 0 {
		logger.Warn("no price ids configured, plans are inferred from amounts only")
	}

	conn, err := database.NewConnection(ctx, database.Config{URL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Health.Register("database", observability.PingChecker("database", true, conn.Ping))
	logger.Info("connected to database", "driver", c.DBDriver.String())

	if !opts.SkipMigrations {
		applied, err := migrations.Run(ctx, conn)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", "versions", applied)
		}
	}

	if err := c.connectRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}

	if opts.Publisher {
		if err := c.connectPublisher(); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.SubscriptionRepo = billingPersistence.NewSubscriptionRepository(conn)
	c.OutboxRepo = outbox.NewRepository(conn)
	c.UnitOfWork = database.NewUnitOfWork(conn)

	if cfg.WebhookSecret != "" {
		c.Verifier, err = signature.New(cfg.WebhookSecret, signature.WithTolerance(cfg.WebhookTolerance))
		if err != nil {
			c.Close()
			return nil, err
		}
	} else {
		logger.Warn("WEBHOOK_SECRET is not set, every webhook will be refused")
	}

	client, err := provider.NewClient(provider.Config{
		BaseURL: cfg.ProviderAPIURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderAPITimeout,
	}, logger, c.Metrics)
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		logger.Info("payment provider API not configured, cancellation and sync disabled")
	case err != nil:
		c.Close()
		return nil, err
	default:
		c.ProviderClient = client
	}

	c.Dispatcher = billingApp.NewDispatcher(
		c.SubscriptionRepo,
		c.UnitOfWork,
		c.Plans,
		billingApp.DispatcherConfig{LockTTL: cfg.WebhookLockTTL, MaxAttempts: cfg.WebhookMaxApplyAttempts},
		logger,
		c.Metrics,
	).WithLocker(c.Locker).WithOutbox(c.OutboxRepo)
	if c.Verifier != nil {
		c.Dispatcher.WithVerifier(c.Verifier)
	}

	c.BillingService = billingApp.NewService(c.SubscriptionRepo)

	var canceller billingApp.ProviderCanceller
	if c.ProviderClient != nil {
		canceller = c.ProviderClient
	}
	c.AccountService = billingApp.NewAccountService(c.SubscriptionRepo, c.SubscriptionRepo, canceller, logger).
		WithCancellationTimeout(cfg.ProviderAPITimeout)

	if c.EventPublisher != nil {
		c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			MaxRetries:   cfg.OutboxMaxRetries,
			Retention:    time.Duration(cfg.OutboxRetentionDays) * 24 * time.Hour,
		}, logger, c.Metrics)
	}

	return c, nil
}

// connectRedis sets up the in-flight locker. Redis is optional in development;
// without it the dispatcher grants every lock and relies on the store's
// conditional update.
func (c *Container) connectRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, in-flight locking disabled", "error", err)
		return nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, in-flight locking disabled", "error", err)
		return nil
	}

	c.RedisClient = client
	locker := lock.NewRedisLocker(client, lock.DefaultPrefix)
	c.Locker = locker
	c.Health.Register("redis", observability.PingChecker("redis", false, locker.Ping))
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) connectPublisher() error {
	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
	if err != nil {
		if c.Config.IsDevelopment() {
			c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
			c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
			return nil
		}
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	c.EventPublisher = publisher
	c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", true, publisher.Ping))
	return nil
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver.String())
		}
	}
}

// NewPlanResolver builds the plan tables from configuration.
func NewPlanResolver(cfg *config.Config) (billingDomain.PlanResolver, error) {
	ranges := cfg.AmountRanges
	if ranges == "" {
		ranges = billingDomain.DefaultAmountRanges
	}
	amounts, err := billingDomain.ParseAmountTable(ranges, cfg.DefaultCurrency)
	if err != nil {
		return billingDomain.PlanResolver{}, fmt.Errorf("%w: BILLING_AMOUNT_RANGES: %v", billingDomain.ErrConfig, err)
	}
	return billingDomain.PlanResolver{
		Prices:  billingDomain.NewPriceTable(cfg.MonthlyPriceIDs, cfg.YearlyPriceIDs),
		Amounts: amounts,
	}, nil
}
