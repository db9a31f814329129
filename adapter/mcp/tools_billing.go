package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/paysync/adapter/cli"
	billingApp "github.com/felixgeelhaar/paysync/internal/billing/application"
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/security"
)

type billingStatusInput struct {
	UserID         string `json:"user_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type billingListInput struct {
	Statuses []string `json:"statuses,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type billingEventInput struct {
	EventPath string `json:"event_path,omitempty"`
	EventJSON string `json:"event_json,omitempty"`
}

type billingSignInput struct {
	EventPath string `json:"event_path,omitempty"`
	EventJSON string `json:"event_json,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type billingSyncInput struct {
	SubscriptionID string `json:"subscription_id" jsonschema:"required"`
}

func payloadDir(app *cli.App) string {
	if app == nil || app.Config == nil {
		return ""
	}
	return app.Config.MCPPayloadDir
}

func registerBillingTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("billing.status").
		Description("Get the subscription record of a user or provider subscription").
		Handler(func(ctx context.Context, input billingStatusInput) (any, error) {
			if app == nil || app.BillingService == nil {
				return nil, errors.New("billing status requires database connection")
			}
			if input.SubscriptionID != "" {
				return app.BillingService.FindBySubscriptionID(ctx, input.SubscriptionID)
			}
			userID, err := parseUUID(input.UserID)
			if err != nil {
				return nil, err
			}
			return app.BillingService.GetSubscription(ctx, userID)
		})

	srv.Tool("billing.list").
		Description("List subscription records, optionally filtered by status").
		Handler(func(ctx context.Context, input billingListInput) (any, error) {
			if app == nil || app.BillingService == nil {
				return nil, errors.New("billing list requires database connection")
			}
			statuses, err := billingApp.ParseStatuses(input.Statuses)
			if err != nil {
				return nil, err
			}
			return app.BillingService.ListSubscriptions(ctx, statuses, input.Limit)
		})

	srv.Tool("billing.sign").
		Description("Compute the signature header for a webhook payload").
		Handler(func(ctx context.Context, input billingSignInput) (map[string]string, error) {
			payload, err := loadWebhookPayload(payloadDir(app), input.EventPath, input.EventJSON)
			if err != nil {
				return nil, err
			}
			signer, err := app.Signer("")
			if err != nil {
				return nil, err
			}
			ts := time.Now()
			if input.Timestamp > 0 {
				ts = time.Unix(input.Timestamp, 0)
			}
			return map[string]string{"header": signer.Sign(payload, ts)}, nil
		})

	srv.Tool("billing.replay").
		Description("Apply a webhook payload without checking its signature").
		Handler(func(ctx context.Context, input billingEventInput) (any, error) {
			if app == nil || app.Dispatcher == nil {
				return nil, errors.New("billing replay requires database connection")
			}
			payload, err := loadWebhookPayload(payloadDir(app), input.EventPath, input.EventJSON)
			if err != nil {
				return nil, err
			}
			ev, err := domain.ParseEvent(payload)
			if err != nil {
				return nil, err
			}
			return app.Dispatcher.Apply(ctx, ev)
		})

	srv.Tool("billing.sync").
		Description("Refresh a subscription record from the provider API").
		Handler(func(ctx context.Context, input billingSyncInput) (any, error) {
			if app == nil || app.Dispatcher == nil {
				return nil, errors.New("billing sync requires database connection")
			}
			if app.Provider == nil {
				return nil, errors.New("billing sync requires a provider API key")
			}
			if input.SubscriptionID == "" {
				return nil, errors.New("subscription_id is required")
			}
			detail, err := app.Provider.GetSubscription(ctx, input.SubscriptionID)
			if err != nil {
				return nil, err
			}
			ev, err := domain.EventFromSubscriptionData(detail.Data)
			if err != nil {
				return nil, err
			}
			return app.Dispatcher.Apply(ctx, ev)
		})

	return nil
}

// loadWebhookPayload reads inline JSON, or a file inside payloadDir. File
// paths are refused when no payload directory is configured.
func loadWebhookPayload(payloadDir, path, payload string) ([]byte, error) {
	if payload != "" {
		if len(payload) > security.MaxPayloadBytes {
			return nil, security.ErrPayloadTooLarge
		}
		return []byte(payload), nil
	}
	if path == "" {
		return nil, errors.New("event_path or event_json is required")
	}
	if payloadDir == "" {
		return nil, errors.New("event_path requires MCP_PAYLOAD_DIR; send event_json instead")
	}
	return security.ReadPayload(path, payloadDir)
}
