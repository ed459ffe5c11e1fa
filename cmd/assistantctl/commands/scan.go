package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/voice-todo/internal/app"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/workers"
)

// NewScanCmd creates the scan command
func NewScanCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Archive the user's expired reminders once",
		Long:  "Move every expired, incomplete reminder of --user into history and print what moved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(log) }()
			ctx := cmd.Context()

			store, err := app.OpenStore(ctx, cfg, false, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
				}
			}()

			scanner := workers.NewExpiryScanner(store, workers.NewArchiver(store, log), opts.UserID(), cfg.ScanInterval, nil, log)
			moved, err := scanner.ScanOnce(ctx)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(moved) == 0 {
				fmt.Fprintln(out, "No expired reminders")
				return nil
			}
			fmt.Fprintf(out, "Archived %d reminder(s):\n", len(moved))
			for _, rec := range moved {
				fmt.Fprintf(out, "  - %s (%s)\n", rec.Title, rec.ID)
				if rec.ReminderTime != nil {
					fmt.Fprintf(out, "    Was due: %s\n", rec.ReminderTime.Format(time.RFC3339))
				}
			}
			return nil
		},
	}

	return cmd
}
