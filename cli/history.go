package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"realestate-scraper/models"
	"realestate-scraper/server"
)

func newHistoryCmd() *cobra.Command {
	var (
		source string
		url    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show every stored version of one listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := parseSources(source)
			if err != nil {
				return err
			}
			if len(sources) != 1 {
				return fmt.Errorf("--source must name a single source")
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore(store)

			records, err := store.History(cmd.Context(), url, sources[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no history for %s on %s", url, sources[0])
			}

			if format == "json" {
				return printHistoryJSON(cmd.OutOrStdout(), records)
			}
			return printHistoryTable(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "listing source (nekretnine|oglasi)")
	cmd.Flags().StringVar(&url, "url", "", "listing URL")
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func printHistoryJSON(w io.Writer, records []*models.Record) error {
	rows := make([]server.HistoryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, server.NewHistoryRow(r))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func printHistoryTable(w io.Writer, records []*models.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "VER\tFROM\tTO\tCURRENT\tREASON\tPRICE\tAREA"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(tw, "---\t----\t--\t-------\t------\t-----\t----"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for _, r := range records {
		to := "-"
		if r.ValidTo != nil {
			to = r.ValidTo.Format("2006-01-02")
		}
		current := ""
		if r.IsCurrent {
			current = "yes"
		}
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Version, r.ValidFrom.Format("2006-01-02"), to, current, r.ChangeReason,
			formatDecimal(r.Price, " EUR"), formatDecimal(r.Area, " m²")); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	fmt.Fprintf(w, "\nTotal: %d versions\n", len(records))
	return nil
}

func formatDecimal(d decimal.NullDecimal, unit string) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String() + unit
}
