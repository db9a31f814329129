package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"
)

type accountDeleteInput struct {
	UserID string `json:"user_id" jsonschema:"required"`
}

func registerAccountTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("account.delete").
		Description("Delete a user's subscription record and cancel the provider subscription").
		Handler(func(ctx context.Context, input accountDeleteInput) (map[string]any, error) {
			if app == nil || app.AccountService == nil {
				return nil, errors.New("account deletion requires database connection")
			}
			userID, err := parseUUID(input.UserID)
			if err != nil {
				return nil, err
			}
			res, err := app.AccountService.DeleteAccount(ctx, userID)
			if err != nil {
				return nil, err
			}
			out := map[string]any{
				"user_id":                res.UserID.String(),
				"record_deleted":         res.RecordDeleted,
				"cancellation_attempted": res.CancellationAttempted,
			}
			if res.CancellationWarning != nil {
				out["warning"] = res.CancellationWarning.Error()
			}
			return out, nil
		})

	return nil
}
