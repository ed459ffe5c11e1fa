package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/voice-todo/internal/config"
	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/logger"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Long:  "Create the tables, indexes and change-notification trigger. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(log) }()

			if cfg.StoreBackend != config.BackendPostgres {
				return fmt.Errorf("migrate needs STORE_BACKEND=%s, got %q", config.BackendPostgres, cfg.StoreBackend)
			}

			db, err := database.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema applied")
			return nil
		},
	}

	return cmd
}
