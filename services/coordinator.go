package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"realestate-scraper/models"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

// Batch is a group of listing pages that is collected and committed
// together.
type Batch interface {
	Label() string
	// Collect fetches and parses the batch. It returns the raw listings and
	// the number of pages that contained ads. Unavailable pages are skipped,
	// so an error here means the run cannot continue.
	Collect(ctx context.Context) ([]*models.RawListing, int, error)
}

// SourceAdapter plans the batches of one listing site.
type SourceAdapter interface {
	Tag() models.Source
	Batches() []Batch
}

// Coordinator sequences one run: batches are applied in their own units of
// work, then listings absent from the whole run are swept.
type Coordinator struct {
	store      storage.HistoryStore
	engine     *Engine
	normalizer *Normalizer
	raw        storage.RawListingWriter
	logger     *utils.Logger
}

// NewCoordinator wires a Coordinator. raw may be nil to skip the CSV dump.
func NewCoordinator(store storage.HistoryStore, engine *Engine, normalizer *Normalizer, raw storage.RawListingWriter, logger *utils.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		engine:     engine,
		normalizer: normalizer,
		raw:        raw,
		logger:     logger,
	}
}

// Run scrapes src end to end. On any error the run stops before the sweep
// and the store keeps every batch committed so far; the partial result is
// returned alongside the error.
func (c *Coordinator) Run(ctx context.Context, src SourceAdapter) (*models.RunResult, error) {
	result := &models.RunResult{
		RunID:     uuid.NewString(),
		Source:    src.Tag(),
		StartedAt: c.engine.Now(),
	}
	log := c.logger.With("run_id", result.RunID, "source", result.Source)
	asOf := c.engine.Today()
	seen := utils.NewURLSet()

	batches := src.Batches()
	log.Info("Run started", "batches", len(batches), "as_of", asOf.Format("2006-01-02"))

	for i, b := range batches {
		raw, pages, err := b.Collect(ctx)
		if err != nil {
			result.FinishedAt = c.engine.Now()
			return result, fmt.Errorf("coordinator: collect %s: %w", b.Label(), err)
		}

		if c.raw != nil && len(raw) > 0 {
			if err := c.raw.WriteRaw(raw); err != nil {
				log.Warn("Could not write raw listings", "batch", b.Label(), "error", err)
			}
		}

		br, urls, err := c.applyBatch(ctx, src.Tag(), raw)
		if err != nil {
			result.FinishedAt = c.engine.Now()
			return result, fmt.Errorf("coordinator: batch %s: %w", b.Label(), err)
		}
		br.Label = b.Label()
		br.Pages = pages

		result.Merge(br)
		seen.AddAll(urls)

		log.Info("Batch committed",
			"batch", br.Label,
			"progress", fmt.Sprintf("%d/%d", i+1, len(batches)),
			"pages", br.Pages,
			"processed", br.Processed,
			"inserted", br.Inserted,
			"changed", br.Changed,
			"unchanged", br.Unchanged)
	}

	result.Seen = seen.Size()

	removed, err := c.sweep(ctx, seen.Values(), src.Tag(), asOf)
	if err != nil {
		result.FinishedAt = c.engine.Now()
		return result, fmt.Errorf("coordinator: %w", err)
	}
	result.Removed = removed
	result.FinishedAt = c.engine.Now()

	log.Info("Run finished",
		"seen", result.Seen,
		"inserted", result.Inserted,
		"changed", result.Changed,
		"unchanged", result.Unchanged,
		"removed", result.Removed,
		"skipped", result.Skipped,
		"duration", result.Duration().Round(time.Millisecond))
	return result, nil
}

// applyBatch normalizes and upserts one batch in a single unit of work. The
// URLs are only returned once the commit succeeded.
func (c *Coordinator) applyBatch(ctx context.Context, source models.Source, raw []*models.RawListing) (models.BatchResult, []string, error) {
	var br models.BatchResult

	listings, skipped := c.normalizer.NormalizeBatch(raw)
	br.Skipped = skipped
	if len(listings) == 0 {
		return br, nil, nil
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return br, nil, err
	}

	urls := make([]string, 0, len(listings))
	for _, l := range listings {
		l.Source = source
		outcome, err := c.engine.Upsert(ctx, tx, l)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Error("Rollback failed", "error", rbErr)
			}
			return models.BatchResult{}, nil, err
		}
		br.Count(outcome)
		urls = append(urls, l.URL)
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return models.BatchResult{}, nil, err
	}
	return br, urls, nil
}

func (c *Coordinator) sweep(ctx context.Context, seen []string, source models.Source, asOf time.Time) (int64, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.engine.Sweep(ctx, tx, seen, source, asOf)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return n, nil
}
