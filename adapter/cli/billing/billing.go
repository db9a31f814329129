package billing

import (
	"fmt"
	"io"
	"time"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/spf13/cobra"
)

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Inspect and repair subscription records",
	Long:  `Inspect subscription records, sign test payloads and re-apply events.`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(signCmd)
	Cmd.AddCommand(replayCmd)
	Cmd.AddCommand(syncCmd)
}

const noDatabase = "Billing commands require a database connection."

func printSubscription(out io.Writer, s *domain.Subscription) {
	fmt.Fprintf(out, "User:         %s\n", s.UserID)
	fmt.Fprintf(out, "Status:       %s\n", s.Status)
	fmt.Fprintf(out, "Plan:         %s (source: %s)\n", s.Plan, s.PlanSource)
	fmt.Fprintf(out, "Access:       %s\n", yesNo(s.IsActive()))
	if s.PriceID != "" {
		fmt.Fprintf(out, "Price:        %s\n", s.PriceID)
	}
	if s.ProviderSubscriptionID != "" {
		fmt.Fprintf(out, "Subscription: %s\n", s.ProviderSubscriptionID)
	}
	if s.ProviderCustomerID != "" {
		fmt.Fprintf(out, "Customer:     %s\n", s.ProviderCustomerID)
	}
	printTime(out, "Period ends:  ", s.CurrentPeriodEnd)
	printTime(out, "Trial ends:   ", s.TrialEnd)
	printTime(out, "Cancels at:   ", s.CancelAt)
	printTime(out, "Cancelled at: ", s.CancelledAt)
	if s.LastTransaction.ID != "" {
		fmt.Fprintf(out, "Last payment: %s %s %s\n", s.LastTransaction.ID, s.LastTransaction.Amount.Amount, s.LastTransaction.Amount.Currency)
	}
	if s.LastEventID != "" {
		fmt.Fprintf(out, "Last event:   %s\n", s.LastEventID)
	}
	fmt.Fprintf(out, "Updated:      %s\n", s.UpdatedAt.Format(time.RFC3339))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printTime(out io.Writer, label string, t *time.Time) {
	if t != nil {
		fmt.Fprintf(out, "%s%s\n", label, t.Format(time.RFC3339))
	}
}
