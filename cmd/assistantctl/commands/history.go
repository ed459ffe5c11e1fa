package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/voice-todo/internal/app"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/services/history"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(opts *GlobalOptions) *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the user's history as JSON",
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

			view, err := history.NewService(store).Load(ctx, opts.UserID())
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if flat {
				return enc.Encode(view.Entries())
			}
			return enc.Encode(view)
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "Print one newest-first timeline instead of grouped sections")

	return cmd
}
