package billing

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/paysync/adapter/cli"
	billingApp "github.com/felixgeelhaar/paysync/internal/billing/application"
	"github.com/spf13/cobra"
)

var (
	listStatuses []string
	listLimit    int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscription records",
	Long: `List subscription records, most recently updated first.

Examples:
  paysync billing list
  paysync billing list --status past_due --status paused`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), noDatabase)
			return nil
		}

		statuses, err := billingApp.ParseStatuses(listStatuses)
		if err != nil {
			return err
		}
		subs, err := app.BillingService.ListSubscriptions(cmd.Context(), statuses, listLimit)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tSTATUS\tPLAN\tSUBSCRIPTION\tUPDATED")
		for _, s := range subs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.UserID, s.Status, s.Plan, s.ProviderSubscriptionID, s.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringSliceVar(&listStatuses, "status", nil, "filter by status (repeatable)")
	listCmd.Flags().IntVar(&listLimit, "limit", billingApp.DefaultListLimit, "maximum number of records")
}
