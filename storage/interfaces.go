package storage

import (
	"context"
	"time"

	"realestate-scraper/models"
)

// UnitOfWork is one transaction against the history table. It ends with
// exactly one of Commit or Rollback.
type UnitOfWork interface {
	// Current returns the open row for the key, or nil. Implementations
	// hold a lock on the key until the unit of work ends.
	Current(ctx context.Context, url string, source models.Source) (*models.Record, error)
	// LatestVersion returns the highest version stored for the key, 0 if none.
	LatestVersion(ctx context.Context, url string, source models.Source) (int, error)
	Insert(ctx context.Context, rec *models.Record) (int64, error)
	// CloseVersion ends an open row on validTo.
	CloseVersion(ctx context.Context, id int64, validTo, at time.Time) error
	// Touch refreshes updated_at only.
	Touch(ctx context.Context, id int64, at time.Time) error
	// CloseMissing ends every open row of source opened before asOf whose
	// url is not in seen, marking it removed.
	CloseMissing(ctx context.Context, source models.Source, seen []string, asOf, at time.Time) (int64, error)

	Commit() error
	Rollback() error
}

// HistoryStore is the persistent SCD Type 2 table.
type HistoryStore interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	Migrate(ctx context.Context) error
	// History returns every version of a listing ordered by version.
	History(ctx context.Context, url string, source models.Source) ([]*models.Record, error)
	// Violations runs the integrity checks over the whole table.
	Violations(ctx context.Context) ([]models.Violation, error)
	Close() error
}

// RawListingWriter is the interface for persisting unprocessed scraped data.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}
