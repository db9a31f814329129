package billing

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/paysync/adapter/cli"
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

var replayEventPath string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Apply a stored webhook payload",
	Long: `Apply a webhook payload from a file without checking its signature.

The payload goes through the same validation, idempotency and state machine
as a delivered webhook, so replaying an event that was already applied is a
no-op.

Examples:
  paysync billing replay --event ./event.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayEventPath == "" {
			return errors.New("event path is required")
		}
		app := cli.GetApp()
		if app == nil || app.Dispatcher == nil {
			fmt.Fprintln(cmd.OutOrStdout(), noDatabase)
			return nil
		}

		payload, err := security.ReadPayload(replayEventPath, "")
		if err != nil {
			return err
		}
		ev, err := domain.ParseEvent(payload)
		if err != nil {
			return err
		}

		res, err := app.Dispatcher.Apply(cmd.Context(), ev)
		if err != nil {
			return err
		}
		if res.Skipped {
			fmt.Fprintf(cmd.OutOrStdout(), "Event %s (%s) was already applied.\n", ev.ID, res.EventType)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %s for user %s.\n", res.EventType, ev.UserID)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayEventPath, "event", "", "path to webhook event JSON")
}
