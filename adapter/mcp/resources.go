package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
)

// RegisterResources registers MCP resources that expose subscription data.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	if err := registerSubscriptionResources(srv, deps); err != nil {
		return err
	}
	if err := registerSystemResources(srv, deps); err != nil {
		return err
	}

	return nil
}

func registerSubscriptionResources(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	resources := []struct {
		uri         string
		name        string
		description string
		statuses    []domain.Status
	}{
		{"paysync://subscriptions", "Subscriptions", "Most recently updated subscription records", nil},
		{"paysync://subscriptions/past-due", "Past Due Subscriptions", "Subscriptions whose last payment failed", []domain.Status{domain.StatusPastDue}},
		{"paysync://subscriptions/trialing", "Trialing Subscriptions", "Subscriptions in their trial period", []domain.Status{domain.StatusTrialing}},
	}

	for _, r := range resources {
		statuses := r.statuses
		srv.Resource(r.uri).
			Name(r.name).
			Description(r.description).
			MimeType("application/json").
			Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
				if app == nil || app.BillingService == nil {
					return nil, fmt.Errorf("subscription listing requires database connection")
				}
				subs, err := app.BillingService.ListSubscriptions(ctx, statuses, 0)
				if err != nil {
					return nil, err
				}
				return jsonContent(uri, subs)
			})
	}

	return nil
}

func registerSystemResources(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Resource("paysync://health").
		Name("Health").
		Description("Readiness of the database, lock store and broker").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.Health == nil {
				return nil, fmt.Errorf("health requires initialization")
			}
			return jsonContent(uri, app.Health.Check(ctx))
		})

	return nil
}

func jsonContent(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
