// Package commands implements the assistantctl subcommands.
package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/config"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/middleware"
	"github.com/benvon/voice-todo/internal/models"
)

// GlobalOptions are the flags shared by every subcommand.
type GlobalOptions struct {
	Debug   bool
	Subject string
}

// BindGlobalFlags registers the persistent flags on root.
func BindGlobalFlags(root *cobra.Command) *GlobalOptions {
	opts := &GlobalOptions{}
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.Subject, "user", middleware.DefaultDevSubject, "Identity-provider subject to act as")
	return opts
}

// UserID is the store ID of the --user subject.
func (o *GlobalOptions) UserID() uuid.UUID {
	return models.UserIDFromSubject(o.Subject)
}

// setup loads configuration and a console logger. The caller syncs the logger.
func (o *GlobalOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewDevelopmentLogger(o.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
