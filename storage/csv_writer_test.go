package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"realestate-scraper/models"
)

func TestCSVWriterWritesBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "raw.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	scraped := time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)
	batch := func(urls ...string) []*models.RawListing {
		var out []*models.RawListing
		for _, u := range urls {
			out = append(out, &models.RawListing{
				Source:       models.SourceOglasi,
				URL:          u,
				Title:        "Stan, Liman",
				Price:        "98.500 €",
				PricePerArea: models.NotAvailable,
				Location:     "Liman 3",
				City:         "Novi Sad",
				Area:         "54 m2",
				PropertyType: models.NotAvailable,
				Rooms:        "Dvosoban",
				Floor:        "3. sprat",
				ScrapedAt:    scraped,
			})
		}
		return out
	}

	if err := w.WriteRaw(batch("https://www.oglasi.rs/oglas/1", "https://www.oglasi.rs/oglas/2")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRaw(batch("https://www.oglasi.rs/oglas/3")); err != nil {
		t.Fatal(err)
	}
	if w.Rows() != 3 {
		t.Errorf("Rows() = %d; want 3", w.Rows())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 4 {
		t.Fatalf("lines = %d; want header + 3", len(records))
	}
	if records[0][0] != "izvor" || len(records[0]) != len(rawColumns) {
		t.Errorf("header = %v", records[0])
	}
	row := records[3]
	if row[0] != "oglasi.rs" || row[1] != "https://www.oglasi.rs/oglas/3" || row[11] != "2026-10-12T10:00:00Z" {
		t.Errorf("last row = %v", row)
	}
}
