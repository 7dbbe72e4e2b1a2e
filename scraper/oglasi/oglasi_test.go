package oglasi

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"realestate-scraper/config"
	"realestate-scraper/models"
	"realestate-scraper/utils"
)

const baseURL = "https://www.oglasi.rs"

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/page.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	html, ok := f.pages[url]
	return html, ok
}

func testSource() config.OglasiSource {
	return config.OglasiSource{BaseURL: baseURL, ListURL: baseURL + "/nekretnine/prodaja-stanova?p=%d"}
}

func TestParsePage(t *testing.T) {
	scrapedAt := time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)
	listings, err := ParsePage(loadFixture(t), baseURL, scrapedAt)
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 2 {
		t.Fatalf("cards = %d; want 2", len(listings))
	}

	want := models.RawListing{
		Source:       models.SourceOglasi,
		URL:          "https://www.oglasi.rs/oglas/03-1234567/dvosoban-stan-liman-3",
		Title:        "Dvosoban stan, Liman 3",
		Price:        "98.500 €",
		PricePerArea: models.NotAvailable,
		Location:     "Liman 3",
		City:         "Novi Sad",
		Area:         "54 m2",
		PropertyType: models.NotAvailable,
		Rooms:        "Dvosoban",
		Floor:        "3. sprat",
		ScrapedAt:    scrapedAt,
	}
	if *listings[0] != want {
		t.Errorf("first card =\n%+v\nwant\n%+v", *listings[0], want)
	}

	bare := listings[1]
	if bare.URL != models.NotAvailable || bare.Price != models.NotAvailable ||
		bare.City != models.NotAvailable || bare.Area != models.NotAvailable {
		t.Errorf("bare card should be sentinel-filled: %+v", bare)
	}
}

func TestBatchesSplitWindow(t *testing.T) {
	a := New(testSource(), Window{Start: 1, End: 250, BatchSize: 100}, &fakeFetcher{}, 2, 0, utils.NopLogger())
	batches := a.Batches()

	want := []string{"pages 1-100", "pages 101-200", "pages 201-250"}
	if len(batches) != len(want) {
		t.Fatalf("batches = %d; want %d", len(batches), len(want))
	}
	for i, b := range batches {
		if b.Label() != want[i] {
			t.Errorf("batch %d = %q; want %q", i, b.Label(), want[i])
		}
	}
}

func TestCollectSkipsUnavailablePages(t *testing.T) {
	src := testSource()
	page := loadFixture(t)
	f := &fakeFetcher{pages: map[string]string{
		fmt.Sprintf(src.ListURL, 1): page,
		fmt.Sprintf(src.ListURL, 3): "<html><body></body></html>",
		fmt.Sprintf(src.ListURL, 4): page,
	}}

	a := New(src, Window{Start: 1, End: 4, BatchSize: 4}, f, 3, 0, utils.NopLogger())
	listings, pages, err := a.Batches()[0].Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pages != 2 || len(listings) != 4 {
		t.Errorf("pages=%d listings=%d; want 2 and 4", pages, len(listings))
	}
	if f.calls != 4 {
		t.Errorf("fetched %d pages; want 4", f.calls)
	}
	for _, l := range listings {
		if l.Source != models.SourceOglasi {
			t.Errorf("source = %s", l.Source)
		}
	}
}

func TestCollectCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := New(testSource(), Window{Start: 1, End: 3, BatchSize: 3}, &fakeFetcher{}, 1, 0, utils.NopLogger())
	if _, _, err := a.Batches()[0].Collect(ctx); err == nil {
		t.Error("expected cancellation error")
	}
}
