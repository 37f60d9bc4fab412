package cmd

import (
	"fmt"

	"github.com/agentmail/agentmaild/internal/config"
	"github.com/agentmail/agentmaild/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		// store.Open runs the baseline schema and any pending ledgered
		// migrations before returning (internal/store applyMigrations).
		s, err := store.Open(cfg.Store.DatabaseURL, nil)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		defer s.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
