package cli

import (
	"fmt"

	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		conn, err := database.NewConnection(cmd.Context(), database.Config{URL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath})
		if err != nil {
			return err
		}
		defer conn.Close()

		applied, err := migrations.Run(cmd.Context(), conn)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", conn.Driver())
			return nil
		}
		for _, v := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
