package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"realestate-scraper/config"
	"realestate-scraper/models"
	"realestate-scraper/scraper"
	"realestate-scraper/scraper/nekretnine"
	"realestate-scraper/scraper/oglasi"
	"realestate-scraper/services"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

func newScrapeCmd() *cobra.Command {
	var (
		source   string
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape listings and update their history",
		Long: "Run one scrape per selected source. Each batch of pages is committed on its own; " +
			"listings not seen anywhere in a successful run are closed as removed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := parseSources(source)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), cmd.OutOrStdout(), sources, validate)
		},
	}

	cmd.Flags().StringVar(&source, "source", "all", "source to scrape (nekretnine|oglasi|all)")
	cmd.Flags().BoolVar(&validate, "validate", false, "run the integrity check after scraping")

	return cmd
}

// parseSources maps the --source flag onto source tags.
func parseSources(flag string) ([]models.Source, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "", "all":
		return models.Sources, nil
	case "nekretnine", string(models.SourceNekretnine):
		return []models.Source{models.SourceNekretnine}, nil
	case "oglasi", string(models.SourceOglasi):
		return []models.Source{models.SourceOglasi}, nil
	default:
		return nil, fmt.Errorf("unknown source %q (want nekretnine, oglasi or all)", flag)
	}
}

func newAdapter(src models.Source, cfg *config.Config, fetcher scraper.Fetcher, logger *utils.Logger) services.SourceAdapter {
	if src == models.SourceOglasi {
		window := oglasi.Window{
			Start:     cfg.OglasiStartPage,
			End:       cfg.OglasiEndPage,
			BatchSize: cfg.OglasiBatchSize,
		}
		return oglasi.New(cfg.Sources.Oglasi, window, fetcher, cfg.MaxConcurrency, cfg.RateLimitMs, logger)
	}
	return nekretnine.New(cfg.Sources.Nekretnine, fetcher, cfg.PageDelay, logger)
}

func runScrape(ctx context.Context, out io.Writer, sources []models.Source, validate bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("=== Real estate scraper starting ===",
		"sources", sources,
		"concurrency", cfg.MaxConcurrency,
		"fetch_mode", cfg.FetchMode)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(store)

	fetcher, closer, err := scraper.NewFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	var raw storage.RawListingWriter
	if cfg.RawCSVPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.RawCSVPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := csvWriter.Close(); err != nil {
				logger.Warn("Closing raw CSV failed", "error", err)
			}
			logger.Info("Raw listings saved", "path", cfg.RawCSVPath, "rows", csvWriter.Rows())
		}()
		raw = csvWriter
	}

	coordinator := services.NewCoordinator(
		store,
		services.NewEngine(time.Now, logger),
		services.NewNormalizer(logger),
		raw,
		logger,
	)

	for _, src := range sources {
		result, err := coordinator.Run(ctx, newAdapter(src, cfg, fetcher, logger))
		if result != nil {
			services.PrintRun(out, result)
		}
		if err != nil {
			return fmt.Errorf("scrape %s: %w", src, err)
		}
	}

	if validate {
		return checkIntegrity(ctx, out, store, logger)
	}
	return nil
}
