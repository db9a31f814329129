package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:                  "test",
		SQLitePath:              filepath.Join(t.TempDir(), "paysync.db"),
		WebhookSecret:           "whsec_local",
		WebhookTolerance:        5 * time.Minute,
		WebhookLockTTL:          30 * time.Second,
		WebhookMaxApplyAttempts: 3,
		MonthlyPriceIDs:         []string{"pri_m"},
		YearlyPriceIDs:          []string{"pri_y"},
		DefaultCurrency:         "USD",
		ProviderAPITimeout:      time.Second,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestLocalContainer(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, localConfig(t), testLogger(), Options{})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, database.DriverSQLite, c.DBDriver)
	assert.NotNil(t, c.SubscriptionRepo)
	assert.NotNil(t, c.OutboxRepo)
	assert.NotNil(t, c.Verifier)
	assert.NotNil(t, c.Dispatcher)
	assert.NotNil(t, c.BillingService)
	assert.NotNil(t, c.AccountService)
	assert.Nil(t, c.ProviderClient, "no API key configured")
	assert.Nil(t, c.OutboxProcessor, "publisher not requested")
	assert.Nil(t, c.Locker, "no Redis configured")
	assert.True(t, c.Health.Check(ctx).Ready())
}

func TestLocalContainer_WarnsWithoutPriceIDs(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := localConfig(t)
	c, err := NewContainer(context.Background(), cfg, logger, Options{})
	require.NoError(t, err)
	c.Close()
	assert.NotContains(t, logs.String(), "no price ids configured")

	cfg = localConfig(t)
	cfg.MonthlyPriceIDs = nil
	cfg.YearlyPriceIDs = nil
	c, err = NewContainer(context.Background(), cfg, logger, Options{})
	require.NoError(t, err)
	defer c.Close()
	assert.Contains(t, logs.String(), "no price ids configured")
	assert.Equal(t, 0, c.Plans.Prices.Len())
}

func TestLocalContainer_WebhookFlow(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, localConfig(t), testLogger(), Options{})
	require.NoError(t, err)
	defer c.Close()

	userID := uuid.New()
	body := []byte(`{"event_id":"evt_1","event_type":"subscription.created","data":{"id":"sub_1","status":"trialing",` +
		`"custom_data":{"user_id":"` + userID.String() + `"},"items":[{"price":{"id":"pri_y"}}]}}`)

	res, err := c.Dispatcher.Handle(ctx, body, c.Verifier.Sign(body, time.Now()))
	require.NoError(t, err)
	assert.True(t, res.Success)

	sub, err := c.BillingService.GetSubscription(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, domain.StatusTrialing, sub.Status)
	assert.Equal(t, domain.PlanYearly, sub.Plan)

	deleted, err := c.AccountService.DeleteAccount(ctx, userID)
	require.NoError(t, err)
	assert.True(t, deleted.RecordDeleted)
	assert.Error(t, deleted.CancellationWarning, "no provider client to cancel with")
}

func TestLocalContainer_WithoutSecret(t *testing.T) {
	cfg := localConfig(t)
	cfg.WebhookSecret = ""

	c, err := NewContainer(context.Background(), cfg, testLogger(), Options{})
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Verifier)
	_, err = c.Dispatcher.Handle(context.Background(), []byte(`{}`), "")
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestNewPlanResolver(t *testing.T) {
	cfg := &config.Config{DefaultCurrency: "EUR", AmountRanges: "EUR:5-9:monthly"}
	plans, err := NewPlanResolver(cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanMonthly, plans.Resolve("", &domain.Money{Amount: "6"}).Plan)

	cfg.AmountRanges = ""
	plans, err = NewPlanResolver(cfg)
	require.NoError(t, err)
	assert.Equal(t, "USD", plans.Amounts.Currencies()[0])

	cfg.AmountRanges = "EUR:9-5:monthly"
	_, err = NewPlanResolver(cfg)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
