package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/app"
	"github.com/benvon/voice-todo/internal/intent"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/services/assistant"
	"github.com/benvon/voice-todo/internal/speech"
)

// NewSayCmd creates the say command
func NewSayCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "say",
		Short: "Talk to the assistant from the terminal",
		Long: "Run a voice session where stdin stands in for the microphone and stdout for the speaker. " +
			"Each line is one final transcript. Commands are dispatched against the configured store.",
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

			a, err := app.NewAssistant(cfg, store, nil, log, opts.Debug)
			if err != nil {
				return err
			}

			adapter := speech.NewConsoleAdapter(cmd.InOrStdin(), cmd.OutOrStdout())
			session := speech.NewSession(adapter, cfg.Assistant.Locale)
			defer session.Stop()

			loop := assistant.NewVoiceLoop(a, session, opts.UserID(), log)
			loop.OnRoute = func(route intent.Route) {
				log.Info("assistant_navigate", zap.String("route", string(route)))
			}
			return loop.Run(ctx)
		},
	}

	return cmd
}
