package cli

import (
	"context"

	billingApp "github.com/felixgeelhaar/paysync/internal/billing/application"
	"github.com/felixgeelhaar/paysync/internal/billing/infrastructure/provider"
	"github.com/felixgeelhaar/paysync/internal/billing/infrastructure/signature"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/felixgeelhaar/paysync/pkg/observability"
)

// SubscriptionFetcher reads subscriptions from the payment provider.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*provider.SubscriptionDetail, error)
}

// App holds the CLI application dependencies. Every field but Config may be
// nil when the CLI runs without a database.
type App struct {
	Config *config.Config

	Dispatcher     *billingApp.Dispatcher
	BillingService *billingApp.Service
	AccountService *billingApp.AccountService
	Verifier       *signature.Verifier
	Provider       SubscriptionFetcher
	Health         *observability.HealthRegistry
}

// NewApp creates a new CLI application.
func NewApp(
	cfg *config.Config,
	dispatcher *billingApp.Dispatcher,
	billingService *billingApp.Service,
	accountService *billingApp.AccountService,
) *App {
	return &App{
		Config:         cfg,
		Dispatcher:     dispatcher,
		BillingService: billingService,
		AccountService: accountService,
	}
}

// SetVerifier sets the webhook signer.
func (a *App) SetVerifier(v *signature.Verifier) {
	a.Verifier = v
}

// SetProvider sets the provider API client.
func (a *App) SetProvider(p SubscriptionFetcher) {
	a.Provider = p
}

// SetHealth sets the dependency health registry.
func (a *App) SetHealth(h *observability.HealthRegistry) {
	a.Health = h
}

// Signer returns the configured verifier, or one built from secret when set.
func (a *App) Signer(secret string) (*signature.Verifier, error) {
	if secret != "" {
		return signature.New(secret)
	}
	if a != nil && a.Verifier != nil {
		return a.Verifier, nil
	}
	var configured string
	if a != nil && a.Config != nil {
		configured = a.Config.WebhookSecret
	}
	return signature.New(configured)
}

// Global app instance (set by main)
var app *App

// SetApp sets the global app instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global app instance.
func GetApp() *App {
	return app
}
