package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Decimal columns are TEXT so values read back exactly as written.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS ads (
		id            INTEGER   PRIMARY KEY AUTOINCREMENT,
		url           TEXT      NOT NULL,
		naslov        TEXT,
		cena          TEXT,
		cena_po_m2    TEXT,
		lokacija      TEXT,
		grad          TEXT,
		kvadratura    TEXT,
		tip_stana     TEXT,
		sobnost       TEXT,
		sprat         TEXT,
		izvor         TEXT      NOT NULL,
		valid_from    DATE      NOT NULL,
		valid_to      DATE,
		is_current    BOOLEAN   NOT NULL DEFAULT 1,
		version       INTEGER   NOT NULL,
		change_reason TEXT      NOT NULL,
		updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ads_current ON ads(url, izvor) WHERE is_current`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ads_version ON ads(url, izvor, version)`,
	`CREATE INDEX IF NOT EXISTS idx_ads_izvor_current ON ads(izvor) WHERE is_current`,
	`CREATE INDEX IF NOT EXISTS idx_ads_grad ON ads(grad)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at path and runs
// migrations. Transactions take the write lock when they begin, so one
// writer at a time touches the history table.
func NewSQLiteStore(ctx context.Context, path string) (HistoryStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating database directory %s: %w", dir, err)
	}

	dsn := "file:" + path + "?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	s := &sqlStore{db: db, d: sqliteDialect()}
	if err := s.Migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (also failed to close: %v)", err, closeErr)
		}
		return nil, err
	}
	return s, nil
}

func sqliteDialect() dialect {
	return dialect{
		name:       "sqlite",
		migrations: sqliteMigrations,
		notSeen: func(seen []string) (string, any, error) {
			if seen == nil {
				seen = []string{}
			}
			encoded, err := json.Marshal(seen)
			if err != nil {
				return "", nil, err
			}
			return "url NOT IN (SELECT value FROM json_each(?))", string(encoded), nil
		},
	}
}
