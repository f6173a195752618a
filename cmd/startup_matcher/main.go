// Package main provides the entry point for the startup_matcher CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/startup-matcher/internal/config"
	"github.com/jonathan/startup-matcher/internal/logging"
	"github.com/jonathan/startup-matcher/internal/telemetry"
)

var (
	configPath string
	logLevel   string
	verbose    bool

	cfg *config.Config

	shutdownTracing = func(context.Context) error { return nil }
)

const longDescription = "startup_matcher enriches startup records with founder contacts found on the open web, " +
	"embeds startups and candidates into a shared vector space and keeps their match scores current."

var rootCmd = &cobra.Command{
	Use:                "startup_matcher",
	Short:              "Founder contact enrichment and candidate-startup matching",
	Long:               longDescription,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print human-readable summaries instead of JSON")
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	cfg = loaded
	slog.SetDefault(logging.New(cfg.Log.Level))

	shutdown, err := telemetry.Setup(cmd.Context(), cfg.Telemetry.Endpoint)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		return nil
	}
	shutdownTracing = shutdown
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	return shutdownTracing(context.WithoutCancel(cmd.Context()))
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
