package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"realestate-scraper/models"
)

// rawColumns is the raw CSV layout, in column order.
var rawColumns = []struct {
	name  string
	value func(l *models.RawListing) string
}{
	{"izvor", func(l *models.RawListing) string { return string(l.Source) }},
	{"url", func(l *models.RawListing) string { return l.URL }},
	{"naslov", func(l *models.RawListing) string { return l.Title }},
	{"cena", func(l *models.RawListing) string { return l.Price }},
	{"cena_po_m2", func(l *models.RawListing) string { return l.PricePerArea }},
	{"lokacija", func(l *models.RawListing) string { return l.Location }},
	{"grad", func(l *models.RawListing) string { return l.City }},
	{"kvadratura", func(l *models.RawListing) string { return l.Area }},
	{"tip_stana", func(l *models.RawListing) string { return l.PropertyType }},
	{"sobnost", func(l *models.RawListing) string { return l.Rooms }},
	{"sprat", func(l *models.RawListing) string { return l.Floor }},
	{"scraped_at", func(l *models.RawListing) string { return l.ScrapedAt.Format(time.RFC3339) }},
}

// CSVWriter keeps a copy of every scraped card, before normalization, in
// a CSV file. Batches may be written from several goroutines.
type CSVWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	rows int
}

// NewCSVWriter truncates or creates path, along with its directory, and
// writes the header.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}

	c := &CSVWriter{f: f, w: csv.NewWriter(f)}
	header := make([]string, len(rawColumns))
	for i, col := range rawColumns {
		header[i] = col.name
	}
	if err := c.flushRecords([][]string{header}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	return c, nil
}

// WriteRaw appends one batch and flushes it to disk.
func (c *CSVWriter) WriteRaw(listings []*models.RawListing) error {
	records := make([][]string, 0, len(listings))
	for _, l := range listings {
		rec := make([]string, len(rawColumns))
		for i, col := range rawColumns {
			rec[i] = col.value(l)
		}
		records = append(records, rec)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushRecords(records); err != nil {
		return fmt.Errorf("csv: write batch: %w", err)
	}
	c.rows += len(records)
	return nil
}

func (c *CSVWriter) flushRecords(records [][]string) error {
	for _, rec := range records {
		if err := c.w.Write(rec); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

// Rows is the number of listings written so far.
func (c *CSVWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return fmt.Errorf("csv: flush: %w", err)
	}
	return c.f.Close()
}
