// Package scraper fetches listing pages and holds what the site adapters
// share.
package scraper

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"realestate-scraper/config"
	"realestate-scraper/models"
	"realestate-scraper/utils"
)

// NewFetcher returns the fetcher selected by FETCH_MODE and a closer for it.
func NewFetcher(cfg *config.Config, logger *utils.Logger) (Fetcher, io.Closer, error) {
	opts := OptionsFromConfig(cfg)
	if cfg.FetchMode == "browser" {
		b, err := NewBrowserFetcher(opts, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	}
	return NewHTTPFetcher(opts, logger), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Text returns trimmed text or the NotAvailable marker when empty.
func Text(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.NotAvailable
	}
	return s
}

// AbsoluteURL resolves href against base. Empty hrefs yield NotAvailable.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return models.NotAvailable
	}
	b, err := url.Parse(base)
	if err != nil {
		return models.NotAvailable
	}
	ref, err := url.Parse(href)
	if err != nil {
		return models.NotAvailable
	}
	return b.ResolveReference(ref).String()
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
