package account

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/paysync/adapter/cli"
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/spf13/cobra"
)

var deleteUser string

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a user's subscription record",
	Long: `Delete a user's subscription record and cancel the provider subscription.

The record is removed even when the provider cannot be reached; the failed
cancellation is reported as a warning.

Examples:
  paysync account delete --user 3f6c1d2e-8a4b-4c5d-9e7f-0a1b2c3d4e5f`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if deleteUser == "" {
			return errors.New("--user is required")
		}
		app := cli.GetApp()
		if app == nil || app.AccountService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Account deletion requires a database connection.")
			return nil
		}

		userID, ok := domain.ParseUserID(deleteUser)
		if !ok {
			return fmt.Errorf("invalid user id %q", deleteUser)
		}

		res, err := app.AccountService.DeleteAccount(cmd.Context(), userID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if res.RecordDeleted {
			fmt.Fprintf(out, "Deleted subscription record for %s.\n", userID)
		} else {
			fmt.Fprintf(out, "No subscription record for %s.\n", userID)
		}
		if res.CancellationAttempted && res.CancellationWarning == nil {
			fmt.Fprintln(out, "Provider subscription cancelled.")
		}
		if res.CancellationWarning != nil {
			fmt.Fprintf(out, "Warning: %v\n", res.CancellationWarning)
		}
		return nil
	},
}

func init() {
	deleteCmd.Flags().StringVar(&deleteUser, "user", "", "user id")
}
