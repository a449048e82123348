package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/scenariosearch/internal/config"
	"github.com/cwbudde/scenariosearch/internal/store"
)

var (
	logLevel   string
	configPath string
	dataDir    string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scenariosearch",
	Short: "Search-based testing of autonomous driving agents",
	Long: `ScenarioSearch looks for driving scenarios in which an autonomous agent
misbehaves. Scenarios are encoded as 14-dimensional vectors and scored by a
simulator or a surrogate model; random, NSGA-II and scalarized searches
explore the space along a set of routes.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logger
		var level slog.Level
		switch logLevel {
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
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Base directory for run storage (overrides the config)")
}

// loadConfig reads --config, applies the environment toggles and the
// --data-dir override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// openStore opens the checkpoint store under the configured data dir.
func openStore(cfg *config.Config) (*store.FSStore, error) {
	st, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	return st, nil
}
