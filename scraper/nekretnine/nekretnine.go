// Package nekretnine crawls apartment listings on nekretnine.rs.
package nekretnine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"realestate-scraper/config"
	"realestate-scraper/models"
	"realestate-scraper/scraper"
	"realestate-scraper/services"
	"realestate-scraper/utils"
)

// Adapter plans one batch per price range. The site caps how deep a single
// search paginates, so the catalog is split by price.
type Adapter struct {
	src       config.NekretnineSource
	fetcher   scraper.Fetcher
	pageDelay time.Duration
	logger    *utils.Logger
}

func New(src config.NekretnineSource, fetcher scraper.Fetcher, pageDelay time.Duration, logger *utils.Logger) *Adapter {
	return &Adapter{
		src:       src,
		fetcher:   fetcher,
		pageDelay: pageDelay,
		logger:    logger.With("source", models.SourceNekretnine),
	}
}

func (a *Adapter) Tag() models.Source { return models.SourceNekretnine }

func (a *Adapter) Batches() []services.Batch {
	batches := make([]services.Batch, 0, len(a.src.PriceRanges))
	for _, r := range a.src.PriceRanges {
		batches = append(batches, &priceBatch{a: a, r: r})
	}
	return batches
}

type priceBatch struct {
	a *Adapter
	r config.PriceRange
}

func (b *priceBatch) Label() string {
	return fmt.Sprintf("%d-%d EUR", b.r.Min, b.r.Max)
}

// Collect walks the pages of the range until one comes back empty or
// unavailable, or only repeats listings already collected.
func (b *priceBatch) Collect(ctx context.Context) ([]*models.RawListing, int, error) {
	var out []*models.RawListing
	seen := utils.NewURLSet()
	pages := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		url := fmt.Sprintf(b.a.src.ListURL, b.r.Min, b.r.Max, page)
		html, ok := b.a.fetcher.Fetch(ctx, url)
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			b.a.logger.Warn("Page unavailable, closing range", "range", b.Label(), "page", page)
			break
		}

		listings, err := ParsePage(html, b.a.src.BaseURL, time.Now())
		if err != nil {
			b.a.logger.Warn("Unparsable page, closing range", "range", b.Label(), "page", page, "error", err)
			break
		}
		if len(listings) == 0 {
			break
		}

		fresh := 0
		for _, l := range listings {
			if l.URL != models.NotAvailable && seen.Add(l.URL) {
				fresh++
			}
		}
		if fresh == 0 {
			b.a.logger.Debug("Page repeats earlier results, closing range", "range", b.Label(), "page", page)
			break
		}

		out = append(out, listings...)
		pages++
		b.a.logger.Debug("Page parsed", "range", b.Label(), "page", page, "ads", len(listings))

		if err := scraper.Sleep(ctx, b.a.pageDelay); err != nil {
			return nil, 0, err
		}
	}

	b.a.logger.Info("Range collected", "range", b.Label(), "pages", pages, "ads", len(out))
	return out, pages, nil
}

// ParsePage extracts the listing cards of one result page. Missing
// elements become NotAvailable; a card is never dropped here.
func ParsePage(html, baseURL string, scrapedAt time.Time) ([]*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("nekretnine: parse html: %w", err)
	}

	var out []*models.RawListing
	doc.Find("div.row.offer").Each(func(_ int, card *goquery.Selection) {
		out = append(out, parseCard(card, baseURL, scrapedAt))
	})
	return out, nil
}

func parseCard(card *goquery.Selection, baseURL string, scrapedAt time.Time) *models.RawListing {
	l := &models.RawListing{
		Source:       models.SourceNekretnine,
		URL:          models.NotAvailable,
		Title:        scraper.Text(card.Find("h2.offer-title").First().Text()),
		Price:        models.NotAvailable,
		PricePerArea: models.NotAvailable,
		Location:     scraper.Text(card.Find("p.offer-location").First().Text()),
		City:         models.NotAvailable,
		Area:         models.NotAvailable,
		PropertyType: models.NotAvailable,
		Rooms:        models.NotAvailable,
		Floor:        models.NotAvailable,
		ScrapedAt:    scrapedAt,
	}

	if href, ok := card.Find(`a[href*="/stambeni-objekti/"]`).First().Attr("href"); ok {
		l.URL = scraper.AbsoluteURL(baseURL, href)
	}

	if price := card.Find("p.offer-price").First(); price.Length() > 0 {
		l.Price = scraper.Text(price.Find("span").First().Text())
		l.PricePerArea = scraper.Text(price.Find("small.custom-offer-style").First().Text())
	}

	card.Find("p.offer-price.offer-price--invert span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := s.Text(); strings.Contains(text, "m²") {
			l.Area = scraper.Text(text)
			return false
		}
		return true
	})

	// "date | category | type"
	if meta := card.Find("div.offer-meta-info").First(); meta.Length() > 0 {
		parts := strings.Split(meta.Text(), "|")
		if len(parts) >= 3 {
			l.PropertyType = scraper.Text(parts[2])
		}
	}

	return l
}
