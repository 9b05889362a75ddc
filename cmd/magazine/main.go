package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tendant/college-magazine/pkg/magazine/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand creates the magazine command tree
func NewRootCommand() *cobra.Command {
	var envFile, configFile string

	rootCmd := &cobra.Command{
		Use:   "magazine",
		Short: "College magazine portal",
		Long: `College magazine portal

Serves news, events and gallery content with attached images, student
accounts and event registrations. Backends are selected with DATABASE_URL
and STORAGE_URL.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML or TOML config file; replaces --env-file")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewStatsCommand())
	rootCmd.AddCommand(NewMigrateCommand())

	return rootCmd
}

// loadConfig reads the file named by --config, or else --env-file, and then
// the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		envFile, _ := cmd.Flags().GetString("env-file")
		cfg, err = config.Load(envFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger logs JSON in production and text elsewhere.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
