package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"realestate-scraper/models"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

// Engine applies observed listings to the SCD Type 2 history. It owns no
// transaction: callers pass the unit of work each operation runs in.
type Engine struct {
	now    func() time.Time
	logger *utils.Logger
}

// NewEngine creates an Engine. A nil clock means time.Now.
func NewEngine(now func() time.Time, logger *utils.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now, logger: logger}
}

// Now reads the engine clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Today is the engine clock's calendar date, as stored in DATE columns.
func (e *Engine) Today() time.Time {
	return dateOf(e.now())
}

// Upsert records one observation of a listing and reports what happened to
// its history.
func (e *Engine) Upsert(ctx context.Context, tx storage.UnitOfWork, l *models.Listing) (models.Outcome, error) {
	now := e.now()
	today := dateOf(now)

	current, err := tx.Current(ctx, l.URL, l.Source)
	if err != nil {
		return "", fmt.Errorf("scd: %w", err)
	}

	if current == nil {
		version := 1
		latest, err := tx.LatestVersion(ctx, l.URL, l.Source)
		if err != nil {
			return "", fmt.Errorf("scd: %w", err)
		}
		if latest > 0 {
			// relisted after a removal
			version = latest + 1
			e.logger.Debug("Listing reappeared", "url", l.URL, "source", l.Source, "version", version)
		}
		if _, err := tx.Insert(ctx, openRecord(l, version, today, models.ReasonFirstSeen, now)); err != nil {
			return "", fmt.Errorf("scd: %w", err)
		}
		return models.OutcomeInserted, nil
	}

	if sameDecimal(current.Price, l.Price) && sameDecimal(current.Area, l.Area) {
		if err := tx.Touch(ctx, current.ID, now); err != nil {
			return "", fmt.Errorf("scd: %w", err)
		}
		return models.OutcomeUnchanged, nil
	}

	reason := changeReason(current.Price, l.Price)
	if err := tx.CloseVersion(ctx, current.ID, today, now); err != nil {
		return "", fmt.Errorf("scd: %w", err)
	}
	if _, err := tx.Insert(ctx, openRecord(l, current.Version+1, today, reason, now)); err != nil {
		return "", fmt.Errorf("scd: %w", err)
	}
	e.logger.Debug("Listing changed",
		"url", l.URL, "source", l.Source, "version", current.Version+1, "reason", reason)
	return models.OutcomeChanged, nil
}

// Sweep closes the current rows of source that were not observed in the
// run. An empty seen set is treated as a failed run and closes nothing.
func (e *Engine) Sweep(ctx context.Context, tx storage.UnitOfWork, seen []string, source models.Source, asOf time.Time) (int64, error) {
	if len(seen) == 0 {
		e.logger.Warn("Skipping removal sweep: no listings observed", "source", source)
		return 0, nil
	}
	n, err := tx.CloseMissing(ctx, source, seen, dateOf(asOf), e.now())
	if err != nil {
		return 0, fmt.Errorf("scd: sweep %s: %w", source, err)
	}
	return n, nil
}

func openRecord(l *models.Listing, version int, from time.Time, reason models.ChangeReason, now time.Time) *models.Record {
	return &models.Record{
		Listing:      *l,
		Version:      version,
		ValidFrom:    from,
		IsCurrent:    true,
		ChangeReason: reason,
		UpdatedAt:    now,
	}
}

// changeReason names a change. Price direction is only known when both
// sides have a price; anything else is a data update.
func changeReason(old, cur decimal.NullDecimal) models.ChangeReason {
	if old.Valid && cur.Valid && !old.Decimal.Equal(cur.Decimal) {
		if cur.Decimal.GreaterThan(old.Decimal) {
			return models.ReasonPriceIncreased
		}
		return models.ReasonPriceDecreased
	}
	return models.ReasonDataUpdated
}

func sameDecimal(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
