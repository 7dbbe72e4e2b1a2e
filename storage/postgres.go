package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS ads (
		id            BIGSERIAL   PRIMARY KEY,
		url           TEXT        NOT NULL,
		naslov        TEXT,
		cena          NUMERIC,
		cena_po_m2    NUMERIC,
		lokacija      TEXT,
		grad          TEXT,
		kvadratura    NUMERIC,
		tip_stana     TEXT,
		sobnost       TEXT,
		sprat         TEXT,
		izvor         TEXT        NOT NULL,
		valid_from    DATE        NOT NULL,
		valid_to      DATE,
		is_current    BOOLEAN     NOT NULL DEFAULT TRUE,
		version       INTEGER     NOT NULL,
		change_reason TEXT        NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ads_current ON ads(url, izvor) WHERE is_current`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ads_version ON ads(url, izvor, version)`,
	`CREATE INDEX IF NOT EXISTS idx_ads_izvor_current ON ads(izvor) WHERE is_current`,
	`CREATE INDEX IF NOT EXISTS idx_ads_grad ON ads(grad)`,
	`CREATE OR REPLACE FUNCTION validate_scd_integrity()
	RETURNS TABLE(issue TEXT, issue_url TEXT, issue_source TEXT, detail TEXT)
	LANGUAGE sql STABLE AS $fn$` + violationsSQL + `
	$fn$`,
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use HistoryStore.
func NewPostgresStore(ctx context.Context, dsn string) (HistoryStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	s := &sqlStore{db: db, d: postgresDialect()}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func postgresDialect() dialect {
	return dialect{
		name:      "postgres",
		numbered:  true,
		forUpdate: " FOR UPDATE",
		// serializes concurrent upserts of a key even while it has no current row
		lockKeySQL: `SELECT pg_advisory_xact_lock(hashtext(?))`,
		migrations: postgresMigrations,
		notSeen: func(seen []string) (string, any, error) {
			return "NOT (url = ANY(?))", pq.Array(seen), nil
		},
	}
}
