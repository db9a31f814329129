package billing

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/paysync/adapter/cli"
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/spf13/cobra"
)

var (
	statusUser         string
	statusSubscription string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the subscription record of a user",
	Long: `Show the subscription record of a user or of a provider subscription.

Examples:
  paysync billing status --user 3f6c1d2e-8a4b-4c5d-9e7f-0a1b2c3d4e5f
  paysync billing status --subscription sub_01h...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), noDatabase)
			return nil
		}

		var (
			subscription *domain.Subscription
			err          error
		)
		switch {
		case statusSubscription != "":
			subscription, err = app.BillingService.FindBySubscriptionID(cmd.Context(), statusSubscription)
		case statusUser != "":
			userID, ok := domain.ParseUserID(statusUser)
			if !ok {
				return fmt.Errorf("invalid user id %q", statusUser)
			}
			subscription, err = app.BillingService.GetSubscription(cmd.Context(), userID)
		default:
			return errors.New("--user or --subscription is required")
		}
		if err != nil {
			return err
		}
		if subscription == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No subscription found.")
			return nil
		}

		printSubscription(cmd.OutOrStdout(), subscription)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user id")
	statusCmd.Flags().StringVar(&statusSubscription, "subscription", "", "provider subscription id")
}
