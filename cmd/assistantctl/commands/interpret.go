package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/benvon/voice-todo/internal/app"
	"github.com/benvon/voice-todo/internal/intent"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/models"
)

// NewInterpretCmd creates the interpret command
func NewInterpretCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpret <utterance>",
		Short: "Show the intent the language service extracts from an utterance",
		Long:  "Interpret one utterance without dispatching it. Nothing is written to the store.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(log) }()

			generator, err := app.NewGenerator(cfg, log, opts.Debug)
			if err != nil {
				return err
			}
			in, err := app.NewInterpreter(cfg, generator, log)
			if err != nil {
				return err
			}

			result, err := in.Interpret(cmd.Context(), models.Utterance{Text: strings.Join(args, " "), At: time.Now()})
			if err != nil {
				return fmt.Errorf("interpretation failed: %w", err)
			}

			out, err := yaml.Marshal(describeIntent(result))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	return cmd
}

// describeIntent flattens an intent into the fields it actually carries.
func describeIntent(in intent.Intent) map[string]any {
	out := map[string]any{"action": string(in.Action())}
	switch v := in.(type) {
	case intent.Create:
		out["type"] = string(v.Type)
		out["title"] = v.Title
		if v.DueAt != nil {
			out["due_at"] = v.DueAt.Format(time.RFC3339)
		}
		if v.FireAt != nil {
			out["fire_at"] = v.FireAt.Format(time.RFC3339)
		}
		if len(v.Sections) > 0 {
			out["sections"] = v.Sections
		}
	case intent.Navigate:
		out["route"] = string(v.Route)
	case intent.None:
		if v.Reason != "" {
			out["reason"] = v.Reason
		}
	}
	return out
}
