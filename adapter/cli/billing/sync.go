package billing

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/paysync/adapter/cli"
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/billing/infrastructure/provider"
	"github.com/spf13/cobra"
)

var syncSubscription string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh a record from the provider API",
	Long: `Fetch a subscription from the provider API and apply it as an update.

Useful when webhooks were lost. The provider copy is applied like a
subscription.updated event without an event id.

Examples:
  paysync billing sync --subscription sub_01h...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncSubscription == "" {
			return errors.New("--subscription is required")
		}
		app := cli.GetApp()
		if app == nil || app.Dispatcher == nil {
			fmt.Fprintln(cmd.OutOrStdout(), noDatabase)
			return nil
		}
		if app.Provider == nil {
			return errors.New("billing sync requires PROVIDER_API_KEY")
		}

		detail, err := app.Provider.GetSubscription(cmd.Context(), syncSubscription)
		if provider.IsNotFound(err) {
			return fmt.Errorf("subscription %s not found at provider", syncSubscription)
		}
		if err != nil {
			return err
		}
		ev, err := domain.EventFromSubscriptionData(detail.Data)
		if err != nil {
			return err
		}

		if _, err := app.Dispatcher.Apply(cmd.Context(), ev); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %s (provider status %s) for user %s.\n", detail.ID, detail.Status, ev.UserID)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncSubscription, "subscription", "", "provider subscription id")
}
