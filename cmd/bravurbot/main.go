// Command bravurbot runs the Bravur support chatbot backend.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/bravurbot/internal/config"
	"github.com/ent0n29/bravurbot/internal/observability"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	envFiles []string

	cfg        config.Config
	logger     *slog.Logger
	closeLogFn func() error
)

var rootCmd = &cobra.Command{
	Use:   "bravurbot",
	Short: "Bravur support chatbot backend",
	Long: `bravurbot answers questions about Bravur and IT topics over HTTP and WebSocket.

It classifies each turn, retrieves knowledge-base entries for company questions,
and streams the model's reply back to the widget.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		logger, closeLogFn = observability.SetupLogger(cfg.LogFile, observability.ParseLevel(cfg.LogLevel))
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogFn != nil {
			_ = closeLogFn()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
