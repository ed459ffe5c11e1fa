package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benvon/voice-todo/cmd/assistantctl/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "assistantctl",
		Short: "Operator tool for the voice todo assistant",
		Long:  "CLI tool for applying the schema, trying commands against the interpreter and running the assistant from a terminal",
	}
	opts := commands.BindGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.NewMigrateCmd(opts))
	rootCmd.AddCommand(commands.NewInterpretCmd(opts))
	rootCmd.AddCommand(commands.NewSayCmd(opts))
	rootCmd.AddCommand(commands.NewScanCmd(opts))
	rootCmd.AddCommand(commands.NewHistoryCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
