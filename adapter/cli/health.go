package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check dependency health",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("app not initialized")
		}
		if app.Health == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "ok (no dependencies registered)")
			return nil
		}

		report := app.Health.Check(cmd.Context())
		names := make([]string, 0, len(report.Checks))
		for name := range report.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := report.Checks[name]
			line := fmt.Sprintf("%-10s %s", name, c.Status)
			if c.Message != "" {
				line += " (" + c.Message + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "overall    %s\n", report.Status)
		if !report.Ready() {
			return fmt.Errorf("not ready")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
