// Package cli defines the cobra command tree for realestate-scraper.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"realestate-scraper/config"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

var (
	flagEnvFile  string
	flagLogLevel string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "realestate-scraper",
		Short:         "Track apartment listings from nekretnine.rs and oglasi.rs",
		Long:          "Scrapes apartment listings from Serbian listing sites and keeps their full price history in an SCD Type 2 table.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagEnvFile, "env", "", "path to a .env file (default: ./.env)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	root.AddCommand(
		newScrapeCmd(),
		newValidateCmd(),
		newMigrateCmd(),
		newHistoryCmd(),
		newServeCmd(),
	)

	return root
}

// loadConfig reads the environment and builds the logger for a command.
func loadConfig() (*config.Config, *utils.Logger, error) {
	var files []string
	if flagEnvFile != "" {
		files = append(files, flagEnvFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logger := utils.NewLoggerWith(utils.LogOptions{
		Level: level,
		JSON:  cfg.LogFormat == "json",
	})
	return cfg, logger, nil
}

// openStore connects to the configured backend and migrates it.
func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.HistoryStore, error) {
	switch cfg.DBDriver {
	case "sqlite":
		logger.Info("Using SQLite store", "path", cfg.SQLitePath)
		return storage.NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		logger.Info("Using PostgreSQL store", "host", cfg.DBHost, "db", cfg.DBName)
		store, err := storage.NewPostgresStore(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("%w (is the database running?)", err)
		}
		return store, nil
	}
}

// closeStore closes the store, logging any error to stderr.
func closeStore(store storage.HistoryStore) {
	if err := store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
	}
}
