package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"realestate-scraper/models"
)

// dateLayout is how DATE columns are written; both backends compare it lexically.
const dateLayout = "2006-01-02"

// dialect captures what differs between the Postgres and SQLite backends.
// Queries are written once with ? placeholders.
type dialect struct {
	name       string
	numbered   bool   // rewrite ? as $1, $2, ...
	forUpdate  string // row lock suffix for the current-row lookup
	lockKeySQL string // statement taking a transaction-scoped lock on a key, if any
	migrations []string
	// notSeen renders the "url not in seen" predicate and its single argument.
	notSeen func(seen []string) (string, any, error)
}

func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements HistoryStore on database/sql.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

const recordColumns = `id, url, naslov, cena, cena_po_m2, lokacija, grad, kvadratura,
	tip_stana, sobnost, sprat, izvor, valid_from, valid_to, is_current, version,
	change_reason, updated_at`

const insertSQL = `INSERT INTO ads
	(url, naslov, cena, cena_po_m2, lokacija, grad, kvadratura, tip_stana, sobnost, sprat,
	 izvor, valid_from, valid_to, is_current, version, change_reason, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

// violationsSQL checks the history invariants. Successive versions must be
// adjacent; the only permitted gap follows a row closed as removed.
const violationsSQL = `
SELECT 'multiple_current', url, izvor, 'current rows: ' || COUNT(*)
FROM ads WHERE is_current
GROUP BY url, izvor HAVING COUNT(*) > 1
UNION ALL
SELECT 'version_sequence', url, izvor,
	'versions ' || MIN(version) || '..' || MAX(version) || ' over ' || COUNT(*) || ' rows'
FROM ads
GROUP BY url, izvor
HAVING MIN(version) <> 1 OR MAX(version) <> COUNT(*) OR COUNT(DISTINCT version) <> COUNT(*)
UNION ALL
SELECT 'open_closed_row', url, izvor, 'version ' || version
FROM ads
WHERE NOT is_current AND (valid_to IS NULL OR valid_to < valid_from)
UNION ALL
SELECT 'interval_overlap', url, izvor,
	'version ' || version || ' ends ' || COALESCE(CAST(valid_to AS TEXT), 'open') ||
	', next starts ' || CAST(next_from AS TEXT)
FROM (
	SELECT url, izvor, version, valid_to, change_reason,
		LEAD(valid_from) OVER (PARTITION BY url, izvor ORDER BY version) AS next_from
	FROM ads
) successive
WHERE next_from IS NOT NULL
	AND (valid_to IS NULL
		OR valid_to > next_from
		OR (valid_to < next_from AND change_reason <> 'removed'))`

func (s *sqlStore) Migrate(ctx context.Context) error {
	for i, m := range s.d.migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("%s: migration %d: %w", s.d.name, i, err)
		}
	}
	return nil
}

func (s *sqlStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", s.d.name, err)
	}
	return &sqlUnit{tx: tx, d: s.d}, nil
}

func (s *sqlStore) History(ctx context.Context, url string, source models.Source) ([]*models.Record, error) {
	query := s.d.bind(`SELECT ` + recordColumns + ` FROM ads WHERE url = ? AND izvor = ? ORDER BY version`)
	rows, err := s.db.QueryContext(ctx, query, url, string(source))
	if err != nil {
		return nil, fmt.Errorf("%s: history: %w", s.d.name, err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", s.d.name, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *sqlStore) Violations(ctx context.Context) ([]models.Violation, error) {
	rows, err := s.db.QueryContext(ctx, violationsSQL)
	if err != nil {
		return nil, fmt.Errorf("%s: violations: %w", s.d.name, err)
	}
	defer rows.Close()

	var out []models.Violation
	for rows.Next() {
		var v models.Violation
		var source string
		if err := rows.Scan(&v.Check, &v.URL, &source, &v.Detail); err != nil {
			return nil, fmt.Errorf("%s: scan violation: %w", s.d.name, err)
		}
		v.Source = models.Source(source)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// sqlUnit is a UnitOfWork over one *sql.Tx.
type sqlUnit struct {
	tx *sql.Tx
	d  dialect
}

func (u *sqlUnit) Current(ctx context.Context, url string, source models.Source) (*models.Record, error) {
	if u.d.lockKeySQL != "" {
		if _, err := u.tx.ExecContext(ctx, u.d.bind(u.d.lockKeySQL), string(source)+"|"+url); err != nil {
			return nil, fmt.Errorf("%s: lock key: %w", u.d.name, err)
		}
	}

	query := u.d.bind(`SELECT ` + recordColumns + ` FROM ads
		WHERE url = ? AND izvor = ? AND is_current` + u.d.forUpdate)
	rec, err := scanRecord(u.tx.QueryRowContext(ctx, query, url, string(source)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: current row: %w", u.d.name, err)
	}
	return rec, nil
}

func (u *sqlUnit) LatestVersion(ctx context.Context, url string, source models.Source) (int, error) {
	var v int
	query := u.d.bind(`SELECT COALESCE(MAX(version), 0) FROM ads WHERE url = ? AND izvor = ?`)
	if err := u.tx.QueryRowContext(ctx, query, url, string(source)).Scan(&v); err != nil {
		return 0, fmt.Errorf("%s: latest version: %w", u.d.name, err)
	}
	return v, nil
}

func (u *sqlUnit) Insert(ctx context.Context, r *models.Record) (int64, error) {
	var validTo any
	if r.ValidTo != nil {
		validTo = r.ValidTo.Format(dateLayout)
	}

	var id int64
	err := u.tx.QueryRowContext(ctx, u.d.bind(insertSQL),
		r.URL, textArg(r.Title), r.Price, r.PricePerArea, textArg(r.Location), textArg(r.City), r.Area,
		textArg(r.PropertyType), textArg(r.Rooms), textArg(r.Floor), string(r.Source),
		r.ValidFrom.Format(dateLayout), validTo, r.IsCurrent, r.Version,
		string(r.ChangeReason), r.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: insert version %d of %s: %w", u.d.name, r.Version, r.URL, err)
	}
	return id, nil
}

func (u *sqlUnit) CloseVersion(ctx context.Context, id int64, validTo, at time.Time) error {
	query := u.d.bind(`UPDATE ads SET valid_to = ?, is_current = FALSE, updated_at = ? WHERE id = ?`)
	if _, err := u.tx.ExecContext(ctx, query, validTo.Format(dateLayout), at, id); err != nil {
		return fmt.Errorf("%s: close row %d: %w", u.d.name, id, err)
	}
	return nil
}

func (u *sqlUnit) Touch(ctx context.Context, id int64, at time.Time) error {
	query := u.d.bind(`UPDATE ads SET updated_at = ? WHERE id = ?`)
	if _, err := u.tx.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("%s: touch row %d: %w", u.d.name, id, err)
	}
	return nil
}

func (u *sqlUnit) CloseMissing(ctx context.Context, source models.Source, seen []string, asOf, at time.Time) (int64, error) {
	predicate, arg, err := u.d.notSeen(seen)
	if err != nil {
		return 0, fmt.Errorf("%s: encode seen set: %w", u.d.name, err)
	}

	day := asOf.Format(dateLayout)
	query := u.d.bind(`UPDATE ads
		SET valid_to = ?, is_current = FALSE, updated_at = ?, change_reason = ?
		WHERE izvor = ? AND is_current AND valid_from < ? AND ` + predicate)
	res, err := u.tx.ExecContext(ctx, query,
		day, at, string(models.ReasonRemoved), string(source), day, arg)
	if err != nil {
		return 0, fmt.Errorf("%s: close missing: %w", u.d.name, err)
	}
	return res.RowsAffected()
}

func (u *sqlUnit) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", u.d.name, err)
	}
	return nil
}

func (u *sqlUnit) Rollback() error {
	err := u.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: rollback: %w", u.d.name, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var rec models.Record
	var title, location, city, propertyType, rooms, floor sql.NullString
	var price, pricePerArea, area decimal.NullDecimal
	var source, reason string
	var validTo sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.URL, &title, &price, &pricePerArea, &location, &city, &area,
		&propertyType, &rooms, &floor, &source, &rec.ValidFrom, &validTo, &rec.IsCurrent,
		&rec.Version, &reason, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Source = models.Source(source)
	rec.ChangeReason = models.ChangeReason(reason)
	rec.Title = stringPtr(title)
	rec.Location = stringPtr(location)
	rec.City = stringPtr(city)
	rec.PropertyType = stringPtr(propertyType)
	rec.Rooms = stringPtr(rooms)
	rec.Floor = stringPtr(floor)
	rec.Price = price
	rec.PricePerArea = pricePerArea
	rec.Area = area
	if validTo.Valid {
		t := validTo.Time
		rec.ValidTo = &t
	}
	return &rec, nil
}

func textArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
