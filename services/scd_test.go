package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"realestate-scraper/models"
	"realestate-scraper/storage"
)

// fakeClock is a settable engine clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) nextDay() { c.t = c.t.AddDate(0, 0, 1) }

func testStore(t *testing.T) storage.HistoryStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ads.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func listing(url, price, area string) *models.Listing {
	l := &models.Listing{Source: models.SourceNekretnine, URL: url}
	if price != "" {
		l.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	if area != "" {
		l.Area = decimal.NewNullDecimal(decimal.RequireFromString(area))
	}
	return l
}

// upsert applies one listing in its own unit of work.
func upsert(t *testing.T, s storage.HistoryStore, e *Engine, l *models.Listing) models.Outcome {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	out, err := e.Upsert(ctx, tx, l)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("upsert %s: %v", l.URL, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return out
}

func sweep(t *testing.T, s storage.HistoryStore, e *Engine, seen []string, source models.Source, asOf time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	n, err := e.Sweep(ctx, tx, seen, source, asOf)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("sweep: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return n
}

func history(t *testing.T, s storage.HistoryStore, url string) []*models.Record {
	t.Helper()
	h, err := s.History(context.Background(), url, models.SourceNekretnine)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return h
}

func assertOneCurrent(t *testing.T, hist []*models.Record) *models.Record {
	t.Helper()
	var current []*models.Record
	for _, r := range hist {
		if r.IsCurrent {
			current = append(current, r)
		}
	}
	if len(current) != 1 {
		t.Fatalf("expected exactly one current row, got %d", len(current))
	}
	return current[0]
}

func assertNoViolations(t *testing.T, s storage.HistoryStore) {
	t.Helper()
	v, err := s.Violations(context.Background())
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(v) != 0 {
		t.Errorf("unexpected integrity violations: %+v", v)
	}
}

const adURL = "https://www.nekretnine.rs/stambeni-objekti/stanovi/dvosoban/NkABC123/"

func TestUpsertAbsentKeyInserts(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())

	if got := upsert(t, s, e, listing(adURL, "100000", "50")); got != models.OutcomeInserted {
		t.Fatalf("outcome = %s; want inserted", got)
	}

	hist := history(t, s, adURL)
	if len(hist) != 1 {
		t.Fatalf("rows = %d; want 1", len(hist))
	}
	r := hist[0]
	if r.Version != 1 || !r.IsCurrent || r.ValidTo != nil || r.ChangeReason != models.ReasonFirstSeen {
		t.Errorf("unexpected first row: %+v", r)
	}
	if !r.ValidFrom.Equal(e.Today()) {
		t.Errorf("valid_from = %v; want %v", r.ValidFrom, e.Today())
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())

	upsert(t, s, e, listing(adURL, "100000", "50"))
	for i := 0; i < 5; i++ {
		clock.nextDay()
		if got := upsert(t, s, e, listing(adURL, "100000.00", "50.0")); got != models.OutcomeUnchanged {
			t.Fatalf("resubmission %d: outcome = %s; want unchanged", i, got)
		}
	}

	hist := history(t, s, adURL)
	if len(hist) != 1 || hist[0].Version != 1 {
		t.Fatalf("history changed on identical resubmission: %d rows", len(hist))
	}
	if !hist[0].UpdatedAt.Equal(clock.Now()) {
		t.Errorf("updated_at = %v; want refreshed to %v", hist[0].UpdatedAt, clock.Now())
	}
}

func TestUpsertChangeReasons(t *testing.T) {
	tests := []struct {
		name       string
		first      [2]string // price, area
		second     [2]string
		wantReason models.ChangeReason
	}{
		{"price decreased", [2]string{"100000", "50"}, [2]string{"95000", "50"}, models.ReasonPriceDecreased},
		{"price increased", [2]string{"100000", "50"}, [2]string{"110000", "50"}, models.ReasonPriceIncreased},
		{"area only", [2]string{"100000", "50"}, [2]string{"100000", "52"}, models.ReasonDataUpdated},
		{"price appears", [2]string{"", "50"}, [2]string{"100000", "50"}, models.ReasonDataUpdated},
		{"price disappears", [2]string{"100000", "50"}, [2]string{"", "50"}, models.ReasonDataUpdated},
		{"area disappears", [2]string{"100000", "50"}, [2]string{"100000", ""}, models.ReasonDataUpdated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(t)
			clock := newFakeClock()
			e := NewEngine(clock.Now, newTestLogger())

			upsert(t, s, e, listing(adURL, tt.first[0], tt.first[1]))
			clock.nextDay()
			if got := upsert(t, s, e, listing(adURL, tt.second[0], tt.second[1])); got != models.OutcomeChanged {
				t.Fatalf("outcome = %s; want changed", got)
			}

			hist := history(t, s, adURL)
			if len(hist) != 2 {
				t.Fatalf("rows = %d; want 2", len(hist))
			}
			old, cur := hist[0], hist[1]
			if old.IsCurrent || old.ValidTo == nil || !old.ValidTo.Equal(e.Today()) {
				t.Errorf("old row not closed today: %+v", old)
			}
			if old.ChangeReason != models.ReasonFirstSeen {
				t.Errorf("old row reason rewritten to %s", old.ChangeReason)
			}
			if cur.Version != 2 || !cur.IsCurrent || !cur.ValidFrom.Equal(e.Today()) {
				t.Errorf("new row = %+v", cur)
			}
			if cur.ChangeReason != tt.wantReason {
				t.Errorf("reason = %s; want %s", cur.ChangeReason, tt.wantReason)
			}
			assertNoViolations(t, s)
		})
	}
}

func TestUpsertKeepsSingleCurrentRow(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())

	prices := []string{"100000", "95000", "95000", "99000", "100000", "100000"}
	for i, p := range prices {
		upsert(t, s, e, listing(adURL, p, "48"))
		cur := assertOneCurrent(t, history(t, s, adURL))
		if !cur.Price.Decimal.Equal(decimal.RequireFromString(p)) {
			t.Errorf("step %d: current price = %s; want %s", i, cur.Price.Decimal, p)
		}
		clock.nextDay()
	}

	// returning to an earlier price is a new version, not a rollback
	hist := history(t, s, adURL)
	if len(hist) != 4 {
		t.Errorf("rows = %d; want 4", len(hist))
	}
	assertNoViolations(t, s)
}

func TestSameDayChangeStaysContiguous(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())

	upsert(t, s, e, listing(adURL, "100000", "50"))
	upsert(t, s, e, listing(adURL, "90000", "50"))

	hist := history(t, s, adURL)
	if len(hist) != 2 || !hist[0].ValidTo.Equal(hist[1].ValidFrom) {
		t.Fatalf("unexpected same-day history: %+v", hist)
	}
	assertNoViolations(t, s)
}

func TestSweepEmptySeenIsNoop(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())

	for i := 0; i < 5; i++ {
		upsert(t, s, e, listing(adURL+string(rune('a'+i)), "100000", "50"))
	}
	clock.nextDay()

	if n := sweep(t, s, e, nil, models.SourceNekretnine, e.Today()); n != 0 {
		t.Errorf("sweep with empty seen set closed %d rows", n)
	}
	for i := 0; i < 5; i++ {
		assertOneCurrent(t, history(t, s, adURL+string(rune('a'+i))))
	}
}

func TestSweepClosesUnseen(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())

	u1, u2, u3 := adURL+"1", adURL+"2", adURL+"3"
	for _, u := range []string{u1, u2, u3} {
		upsert(t, s, e, listing(u, "100000", "50"))
	}
	clock.nextDay()
	asOf := e.Today()

	if n := sweep(t, s, e, []string{u1, u2}, models.SourceNekretnine, asOf); n != 1 {
		t.Fatalf("closed %d rows; want 1", n)
	}

	gone := history(t, s, u3)
	if len(gone) != 1 || gone[0].IsCurrent || gone[0].ChangeReason != models.ReasonRemoved {
		t.Fatalf("u3 not removed: %+v", gone)
	}
	if gone[0].ValidTo == nil || !gone[0].ValidTo.Equal(asOf) {
		t.Errorf("u3 valid_to = %v; want %v", gone[0].ValidTo, asOf)
	}
	assertOneCurrent(t, history(t, s, u1))
	assertOneCurrent(t, history(t, s, u2))
}

func TestSweepSparesRowsOpenedToday(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())

	upsert(t, s, e, listing(adURL+"old", "100000", "50"))
	upsert(t, s, e, listing(adURL+"new", "100000", "50"))

	if n := sweep(t, s, e, []string{adURL + "old"}, models.SourceNekretnine, e.Today()); n != 0 {
		t.Errorf("closed %d rows opened on the sweep date", n)
	}
}

func TestRelistContinuesVersions(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())
	other := adURL + "other"

	upsert(t, s, e, listing(adURL, "100000", "50"))
	upsert(t, s, e, listing(other, "80000", "40"))
	clock.nextDay()
	sweep(t, s, e, []string{other}, models.SourceNekretnine, e.Today())

	clock.nextDay()
	clock.nextDay()
	if got := upsert(t, s, e, listing(adURL, "100000", "50")); got != models.OutcomeInserted {
		t.Fatalf("relist outcome = %s; want inserted", got)
	}

	hist := history(t, s, adURL)
	if len(hist) != 2 {
		t.Fatalf("rows = %d; want 2", len(hist))
	}
	if hist[0].ChangeReason != models.ReasonRemoved || hist[0].IsCurrent {
		t.Errorf("v1 = %+v", hist[0])
	}
	if hist[1].Version != 2 || hist[1].ChangeReason != models.ReasonFirstSeen || !hist[1].IsCurrent {
		t.Errorf("relisted row = %+v", hist[1])
	}
	assertNoViolations(t, s)
}

func TestUpsertConcurrentSameKey(t *testing.T) {
	s := testStore(t)
	clock := newFakeClock()
	e := NewEngine(clock.Now, newTestLogger())
	ctx := context.Background()

	const workers = 8
	prices := []string{"100000", "105000"}

	outcomes := make(chan models.Outcome, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(price string) {
			defer wg.Done()
			tx, err := s.Begin(ctx)
			if err != nil {
				errs <- err
				return
			}
			out, err := e.Upsert(ctx, tx, listing(adURL, price, "50"))
			if err != nil {
				_ = tx.Rollback()
				errs <- err
				return
			}
			if err := tx.Commit(); err != nil {
				errs <- err
				return
			}
			outcomes <- out
		}(prices[i%len(prices)])
	}
	wg.Wait()
	close(errs)
	close(outcomes)

	for err := range errs {
		t.Errorf("concurrent upsert: %v", err)
	}
	inserted := 0
	for out := range outcomes {
		if out == models.OutcomeInserted {
			inserted++
		}
	}
	if inserted != 1 {
		t.Errorf("inserted outcomes: got %d, want 1", inserted)
	}

	hist := history(t, s, adURL)
	assertOneCurrent(t, hist)
	for i, r := range hist {
		if r.Version != i+1 {
			t.Errorf("row %d has version %d; want %d", i, r.Version, i+1)
		}
	}
	assertNoViolations(t, s)
}
