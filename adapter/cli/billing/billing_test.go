package billing

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/paysync/adapter/cli"
	"github.com/felixgeelhaar/paysync/internal/app"
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/billing/infrastructure/provider"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "3f6c1d2e-8a4b-4c5d-9e7f-0a1b2c3d4e5f"

func resetFlags() {
	statusUser = ""
	statusSubscription = ""
	listStatuses = nil
	listLimit = 0
	signEventPath = ""
	signSecret = ""
	signAt = 0
	replayEventPath = ""
	syncSubscription = ""
}

type fakeFetcher struct {
	detail *provider.SubscriptionDetail
	err    error
}

func (f fakeFetcher) GetSubscription(context.Context, string) (*provider.SubscriptionDetail, error) {
	return f.detail, f.err
}

// newTestApp wires a CLI app against a throwaway SQLite database.
func newTestApp(t *testing.T) *cli.App {
	t.Helper()
	cfg := &config.Config{
		AppEnv:                  "test",
		SQLitePath:              filepath.Join(t.TempDir(), "paysync.db"),
		WebhookSecret:           "whsec_cli",
		WebhookTolerance:        5 * time.Minute,
		WebhookLockTTL:          30 * time.Second,
		WebhookMaxApplyAttempts: 3,
		MonthlyPriceIDs:         []string{"pri_monthly"},
		YearlyPriceIDs:          []string{"pri_yearly"},
		DefaultCurrency:         "USD",
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c, err := app.NewContainer(context.Background(), cfg, logger, app.Options{})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	a := cli.NewApp(cfg, c.Dispatcher, c.BillingService, c.AccountService)
	a.SetVerifier(c.Verifier)
	cli.SetApp(a)
	t.Cleanup(func() { cli.SetApp(nil) })
	return a
}

func writeEvent(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func createdEvent(id string) string {
	return `{"event_id":"` + id + `","event_type":"subscription.created","data":{"id":"sub_cli","customer_id":"ctm_cli",` +
		`"status":"active","custom_data":{"user_id":"` + testUser + `"},"items":[{"price":{"id":"pri_monthly"}}]}}`
}

func TestCommands_NoApp(t *testing.T) {
	resetFlags()
	cli.SetApp(nil)

	statusUser = testUser
	replayEventPath = writeEvent(t, createdEvent("evt_1"))
	syncSubscription = "sub_1"

	for _, cmd := range []*cobra.Command{statusCmd, listCmd, replayCmd, syncCmd} {
		t.Run(cmd.Name(), func(t *testing.T) {
			var output strings.Builder
			cmd.SetContext(context.Background())
			cmd.SetOut(&output)

			err := cmd.RunE(cmd, nil)
			assert.NoError(t, err)
			assert.Contains(t, output.String(), "require a database connection")
		})
	}
}

func TestStatusCmd_RequiresSelector(t *testing.T) {
	resetFlags()
	newTestApp(t)

	statusCmd.SetContext(context.Background())
	err := statusCmd.RunE(statusCmd, nil)
	assert.Error(t, err)

	statusUser = "not-a-uuid"
	err = statusCmd.RunE(statusCmd, nil)
	assert.ErrorContains(t, err, "invalid user id")
}

func TestReplayThenStatus(t *testing.T) {
	resetFlags()
	newTestApp(t)
	replayEventPath = writeEvent(t, createdEvent("evt_replay"))

	var output strings.Builder
	replayCmd.SetContext(context.Background())
	replayCmd.SetOut(&output)
	require.NoError(t, replayCmd.RunE(replayCmd, nil))
	assert.Contains(t, output.String(), "Applied subscription.created")

	output.Reset()
	require.NoError(t, replayCmd.RunE(replayCmd, nil))
	assert.Contains(t, output.String(), "already applied")

	output.Reset()
	statusUser = testUser
	statusCmd.SetContext(context.Background())
	statusCmd.SetOut(&output)
	require.NoError(t, statusCmd.RunE(statusCmd, nil))
	assert.Contains(t, output.String(), "active")
	assert.Contains(t, output.String(), "monthly (source: price_id)")
	assert.Contains(t, output.String(), "Access:       yes")
	assert.Contains(t, output.String(), "sub_cli")
	assert.Contains(t, output.String(), "evt_replay")

	output.Reset()
	statusUser = ""
	statusSubscription = "sub_cli"
	require.NoError(t, statusCmd.RunE(statusCmd, nil))
	assert.Contains(t, output.String(), testUser)
}

func TestReplayCmd_InvalidPayload(t *testing.T) {
	resetFlags()
	newTestApp(t)
	replayEventPath = writeEvent(t, `{"event_type":"subscription.created","data":{"custom_data":{"user_id":"nope"}}}`)

	replayCmd.SetContext(context.Background())
	err := replayCmd.RunE(replayCmd, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestListCmd(t *testing.T) {
	resetFlags()
	newTestApp(t)

	var output strings.Builder
	listCmd.SetContext(context.Background())
	listCmd.SetOut(&output)
	require.NoError(t, listCmd.RunE(listCmd, nil))
	assert.Contains(t, output.String(), "No subscriptions found")

	replayEventPath = writeEvent(t, createdEvent("evt_list"))
	replayCmd.SetContext(context.Background())
	replayCmd.SetOut(&strings.Builder{})
	require.NoError(t, replayCmd.RunE(replayCmd, nil))

	output.Reset()
	listStatuses = []string{"active"}
	require.NoError(t, listCmd.RunE(listCmd, nil))
	assert.Contains(t, output.String(), "USER")
	assert.Contains(t, output.String(), testUser)

	output.Reset()
	listStatuses = []string{"paused"}
	require.NoError(t, listCmd.RunE(listCmd, nil))
	assert.Contains(t, output.String(), "No subscriptions found")

	listStatuses = []string{"bogus"}
	err := listCmd.RunE(listCmd, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSignCmd(t *testing.T) {
	resetFlags()
	a := newTestApp(t)
	body := createdEvent("evt_sign")
	signEventPath = writeEvent(t, body)
	signAt = 1767225600

	var output strings.Builder
	signCmd.SetContext(context.Background())
	signCmd.SetOut(&output)
	require.NoError(t, signCmd.RunE(signCmd, nil))

	header := strings.TrimSpace(output.String())
	assert.Contains(t, header, "ts=1767225600")
	assert.Equal(t, a.Verifier.Sign([]byte(body), time.Unix(signAt, 0)), header)
}

func TestSignCmd_Errors(t *testing.T) {
	resetFlags()
	cli.SetApp(nil)

	signCmd.SetContext(context.Background())
	assert.Error(t, signCmd.RunE(signCmd, nil), "event path is required")

	signEventPath = writeEvent(t, "{}")
	err := signCmd.RunE(signCmd, nil)
	assert.ErrorIs(t, err, domain.ErrConfig, "no secret anywhere")

	signSecret = "whsec_flag"
	var output strings.Builder
	signCmd.SetOut(&output)
	require.NoError(t, signCmd.RunE(signCmd, nil))
	assert.Contains(t, output.String(), "h1=")
}

func TestSyncCmd(t *testing.T) {
	resetFlags()
	a := newTestApp(t)
	syncSubscription = "sub_sync"

	syncCmd.SetContext(context.Background())
	err := syncCmd.RunE(syncCmd, nil)
	assert.ErrorContains(t, err, "PROVIDER_API_KEY")

	a.SetProvider(fakeFetcher{err: errors.New("provider unavailable")})
	err = syncCmd.RunE(syncCmd, nil)
	assert.ErrorContains(t, err, "provider unavailable")

	a.SetProvider(fakeFetcher{err: &provider.APIError{StatusCode: 404, Code: "entity_not_found"}})
	err = syncCmd.RunE(syncCmd, nil)
	assert.EqualError(t, err, "subscription sub_sync not found at provider")

	// sync never creates a record
	a.SetProvider(fakeFetcher{detail: &provider.SubscriptionDetail{
		ID:     "sub_sync",
		Status: "past_due",
		Data:   []byte(`{"id":"sub_sync","status":"past_due","custom_data":{"user_id":"` + testUser + `"}}`),
	}})
	var output strings.Builder
	syncCmd.SetOut(&output)
	require.NoError(t, syncCmd.RunE(syncCmd, nil))
	assert.Contains(t, output.String(), "Synced sub_sync")

	userID := uuid.MustParse(testUser)
	sub, err := a.BillingService.GetSubscription(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, sub)

	replayEventPath = writeEvent(t, createdEvent("evt_sync"))
	replayCmd.SetContext(context.Background())
	replayCmd.SetOut(&strings.Builder{})
	require.NoError(t, replayCmd.RunE(replayCmd, nil))

	require.NoError(t, syncCmd.RunE(syncCmd, nil))
	sub, err = a.BillingService.GetSubscription(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, domain.StatusPastDue, sub.Status)
	assert.Equal(t, "evt_sync", sub.LastEventID, "events without an id keep the last event id")
}
