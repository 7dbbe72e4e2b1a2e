// Package oglasi crawls apartment listings on oglasi.rs.
package oglasi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"realestate-scraper/config"
	"realestate-scraper/models"
	"realestate-scraper/scraper"
	"realestate-scraper/services"
	"realestate-scraper/utils"
)

// Window is the page range to crawl and how many pages form one batch.
type Window struct {
	Start, End int
	BatchSize  int
}

// Adapter plans fixed-size page batches whose pages are fetched
// concurrently.
type Adapter struct {
	src         config.OglasiSource
	window      Window
	fetcher     scraper.Fetcher
	concurrency int
	rateLimitMs int
	logger      *utils.Logger
}

func New(src config.OglasiSource, window Window, fetcher scraper.Fetcher, concurrency, rateLimitMs int, logger *utils.Logger) *Adapter {
	return &Adapter{
		src:         src,
		window:      window,
		fetcher:     fetcher,
		concurrency: concurrency,
		rateLimitMs: rateLimitMs,
		logger:      logger.With("source", models.SourceOglasi),
	}
}

func (a *Adapter) Tag() models.Source { return models.SourceOglasi }

func (a *Adapter) Batches() []services.Batch {
	size := a.window.BatchSize
	if size < 1 {
		size = 1
	}
	var batches []services.Batch
	for start := a.window.Start; start <= a.window.End; start += size {
		end := start + size - 1
		if end > a.window.End {
			end = a.window.End
		}
		batches = append(batches, &pageBatch{a: a, start: start, end: end})
	}
	return batches
}

type pageBatch struct {
	a          *Adapter
	start, end int
}

func (b *pageBatch) Label() string {
	return fmt.Sprintf("pages %d-%d", b.start, b.end)
}

// Collect fetches every page of the batch on a worker pool. Results keep
// page order.
func (b *pageBatch) Collect(ctx context.Context) ([]*models.RawListing, int, error) {
	pool := utils.NewWorkerPool(b.a.concurrency, b.a.rateLimitMs)
	results := make([][]*models.RawListing, b.end-b.start+1)
	var mu sync.Mutex
	unavailable := 0

	for page := b.start; page <= b.end; page++ {
		pool.Go(ctx, func(ctx context.Context) {
			url := fmt.Sprintf(b.a.src.ListURL, page)
			html, ok := b.a.fetcher.Fetch(ctx, url)
			if !ok {
				mu.Lock()
				unavailable++
				mu.Unlock()
				return
			}
			listings, err := ParsePage(html, b.a.src.BaseURL, time.Now())
			if err != nil {
				b.a.logger.Warn("Unparsable page", "page", page, "error", err)
				return
			}
			mu.Lock()
			results[page-b.start] = listings
			mu.Unlock()
		})
	}
	pool.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var out []*models.RawListing
	pages := 0
	for _, listings := range results {
		if len(listings) > 0 {
			pages++
			out = append(out, listings...)
		}
	}

	b.a.logger.Info("Batch collected", "batch", b.Label(), "pages_with_ads", pages,
		"unavailable", unavailable, "ads", len(out))
	return out, pages, nil
}

// detail labels inside a card's div.col-sm-6 blocks
const (
	labelArea  = "Kvadratura:"
	labelRooms = "Sobnost:"
	labelFloor = "Nivo u zgradi:"
)

// ParsePage extracts the listing cards of one result page. Missing
// elements become NotAvailable; a card is never dropped here.
func ParsePage(html, baseURL string, scrapedAt time.Time) ([]*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("oglasi: parse html: %w", err)
	}

	var out []*models.RawListing
	doc.Find(`article[itemprop="itemListElement"]`).Each(func(_ int, card *goquery.Selection) {
		out = append(out, parseCard(card, baseURL, scrapedAt))
	})
	return out, nil
}

func parseCard(card *goquery.Selection, baseURL string, scrapedAt time.Time) *models.RawListing {
	l := &models.RawListing{
		Source:       models.SourceOglasi,
		URL:          models.NotAvailable,
		Title:        scraper.Text(card.Find(`h2[itemprop="name"]`).First().Text()),
		Price:        scraper.Text(strings.ReplaceAll(card.Find("span.text-price").First().Text(), "\u00a0", " ")),
		PricePerArea: models.NotAvailable,
		Location:     models.NotAvailable,
		City:         models.NotAvailable,
		Area:         models.NotAvailable,
		PropertyType: models.NotAvailable,
		Rooms:        models.NotAvailable,
		Floor:        models.NotAvailable,
		ScrapedAt:    scrapedAt,
	}

	if href, ok := card.Find("a.fpogl-list-title").First().Attr("href"); ok {
		l.URL = scraper.AbsoluteURL(baseURL, href)
	}

	// breadcrumb categories end with "..., city, location"
	categories := card.Find(`div a[itemprop="category"]`)
	if n := categories.Length(); n > 0 {
		l.Location = scraper.Text(categories.Eq(n - 1).Text())
		if n >= 2 {
			l.City = scraper.Text(categories.Eq(n - 2).Text())
		}
	}

	card.Find("div.col-sm-6").Each(func(_ int, d *goquery.Selection) {
		text := d.Text()
		value := scraper.Text(d.Find("strong").First().Text())
		switch {
		case strings.Contains(text, labelArea):
			l.Area = value
		case strings.Contains(text, labelRooms):
			l.Rooms = value
		case strings.Contains(text, labelFloor):
			l.Floor = value
		}
	})

	return l
}
