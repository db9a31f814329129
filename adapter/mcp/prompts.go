package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common support workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("subscription_triage").
		Description("Investigate a user's subscription record and repair it from the provider if it drifted.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			user := args["user_id"]
			if user == "" {
				user = "<user id>"
			}
			return &mcp.PromptResult{
				Description: "Subscription Triage",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`A user reports their subscription looks wrong. User id: %s

1. Read the record with billing.status (user_id).
2. If it has a provider subscription id, refresh it with billing.sync.
3. Read the record again and compare status, plan and period end.

Report what changed. If the plan source is "amount", say that the plan was
inferred from a payment amount and may be corrected by a later price id.`, user),
						},
					},
				},
			}, nil
		})

	srv.Prompt("past_due_review").
		Description("Summarize subscriptions whose last payment failed.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return &mcp.PromptResult{
				Description: "Past Due Review",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: `Read the paysync://subscriptions/past-due resource and group the records by
plan. For each record list the user id, provider subscription id and current
period end. Flag records whose period ended more than a week ago.`,
						},
					},
				},
			}, nil
		})

	return nil
}
