package account

import "github.com/spf13/cobra"

// Cmd is the account command group.
var Cmd = &cobra.Command{
	Use:   "account",
	Short: "Manage user accounts",
}

func init() {
	Cmd.AddCommand(deleteCmd)
}
