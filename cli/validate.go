package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"realestate-scraper/services"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the history table for integrity violations",
		Long:  "Report keys with several current rows, broken version sequences, unclosed rows and overlapping validity intervals. Exits non-zero on any violation.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore(store)

			return checkIntegrity(cmd.Context(), cmd.OutOrStdout(), store, logger)
		},
	}
}

func checkIntegrity(ctx context.Context, out io.Writer, store storage.HistoryStore, logger *utils.Logger) error {
	svc := services.NewIntegrityService(store, logger)
	report, err := svc.Check(ctx)
	if err != nil {
		return err
	}
	svc.Print(out, report)
	if !report.OK() {
		return fmt.Errorf("integrity check failed: %d violations", len(report.Violations))
	}
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			// opening a store runs the migrations
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore(store)

			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", cfg.DBDriver)
			return nil
		},
	}
}
