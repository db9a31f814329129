package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnvVars clears all paysync-related environment variables.
func clearEnvVars() {
	envVars := []string{
		"APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "PAYSYNC_VERSION",
		"DATABASE_URL", "PAYSYNC_SQLITE_PATH", "REDIS_URL", "RABBITMQ_URL",
		"HTTP_ADDR", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT",
		"WEBHOOK_PATH", "WEBHOOK_SECRET", "WEBHOOK_SIGNATURE_HEADER", "WEBHOOK_TOLERANCE",
		"WEBHOOK_LOCK_TTL", "WEBHOOK_MAX_APPLY_ATTEMPTS",
		"BILLING_MONTHLY_PRICE_IDS", "BILLING_YEARLY_PRICE_IDS", "BILLING_AMOUNT_RANGES",
		"BILLING_DEFAULT_CURRENCY",
		"PROVIDER_API_URL", "PROVIDER_API_KEY", "PROVIDER_API_TIMEOUT",
		"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES",
		"OUTBOX_STATS_INTERVAL", "OUTBOX_RETENTION_DAYS", "OUTBOX_CLEANUP_INTERVAL",
		"OUTBOX_PROCESSOR_ENABLED", "WORKER_HEALTH_ADDR",
		"MCP_ADDR", "MCP_AUTH_TOKEN", "MCP_PAYLOAD_DIR",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.DatabaseURL)

	// Webhook defaults
	assert.Equal(t, "/webhooks/billing", cfg.WebhookPath)
	assert.Equal(t, "", cfg.WebhookSecret)
	assert.Equal(t, "Paddle-Signature", cfg.WebhookSignatureHeader)
	assert.Equal(t, 300*time.Second, cfg.WebhookTolerance)
	assert.Equal(t, 3, cfg.WebhookMaxApplyAttempts)

	// Plan defaults
	assert.Empty(t, cfg.MonthlyPriceIDs)
	assert.Empty(t, cfg.YearlyPriceIDs)
	assert.Equal(t, "USD", cfg.DefaultCurrency)

	// Outbox defaults
	assert.Equal(t, 100*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5, cfg.OutboxMaxRetries)
	assert.True(t, cfg.OutboxProcessorEnabled)

	assert.Equal(t, "0.0.0.0:8081", cfg.WorkerHealthAddr)
	assert.Equal(t, "0.0.0.0:8082", cfg.MCPAddr)
	assert.Empty(t, cfg.MCPPayloadDir)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("APP_ENV", "production")
	os.Setenv("WEBHOOK_SECRET", "whsec_123")
	os.Setenv("WEBHOOK_TOLERANCE", "2m")
	os.Setenv("BILLING_MONTHLY_PRICE_IDS", "pri_m1, pri_m2,,")
	os.Setenv("BILLING_YEARLY_PRICE_IDS", "pri_y1")
	os.Setenv("BILLING_DEFAULT_CURRENCY", "eur")
	os.Setenv("OUTBOX_BATCH_SIZE", "25")
	os.Setenv("OUTBOX_PROCESSOR_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "whsec_123", cfg.WebhookSecret)
	assert.Equal(t, 2*time.Minute, cfg.WebhookTolerance)
	assert.Equal(t, []string{"pri_m1", "pri_m2"}, cfg.MonthlyPriceIDs)
	assert.Equal(t, []string{"pri_y1"}, cfg.YearlyPriceIDs)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
	assert.False(t, cfg.OutboxProcessorEnabled)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("OUTBOX_BATCH_SIZE", "lots")
	os.Setenv("WEBHOOK_LOCK_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 30*time.Second, cfg.WebhookLockTTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WebhookPath:             "/webhooks/billing",
			WebhookTolerance:        5 * time.Minute,
			WebhookMaxApplyAttempts: 3,
			DefaultCurrency:         "USD",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "non-positive tolerance", mutate: func(c *Config) { c.WebhookTolerance = 0 }, wantErr: "WEBHOOK_TOLERANCE"},
		{name: "zero attempts", mutate: func(c *Config) { c.WebhookMaxApplyAttempts = 0 }, wantErr: "WEBHOOK_MAX_APPLY_ATTEMPTS"},
		{name: "relative path", mutate: func(c *Config) { c.WebhookPath = "webhooks" }, wantErr: "WEBHOOK_PATH"},
		{name: "bad currency", mutate: func(c *Config) { c.DefaultCurrency = "DOLLAR" }, wantErr: "BILLING_DEFAULT_CURRENCY"},
		{
			name: "price id in both tiers",
			mutate: func(c *Config) {
				c.MonthlyPriceIDs = []string{"pri_1"}
				c.YearlyPriceIDs = []string{"pri_1"}
			},
			wantErr: "both monthly and yearly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RejectsInvalidConfiguration(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("WEBHOOK_PATH", "no-slash")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
}
