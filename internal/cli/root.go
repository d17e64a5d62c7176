// Package cli provides the certscope CLI commands.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"
var commit = "none"
var date = "unknown"

// SetBuildInfo sets the version info (called from main).
func SetBuildInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

var rootCmd = &cobra.Command{
	Use:   "certscope",
	Short: "TLS certificate discovery and cataloging over address ranges",
	Long: `certscope sweeps IP ranges for TLS endpoints, captures the certificate
chains they present, and keeps a deduplicated catalog of every
certificate seen. Stored chains are re-validated against an operator-
curated trust store, and the catalog answers monitoring-style health
checks about any scanned endpoint.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("otel-endpoint", "", "OTLP gRPC endpoint for tracing (e.g. localhost:4317)")
	rootCmd.PersistentFlags().String("db", "", "Path to the catalog database (overrides config)")
}

func setupLogging(cmd *cobra.Command) error {
	levelStr, _ := cmd.Flags().GetString("log-level")   //nolint:errcheck // flag registered above
	formatStr, _ := cmd.Flags().GetString("log-format") //nolint:errcheck // flag registered above

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch formatStr {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
