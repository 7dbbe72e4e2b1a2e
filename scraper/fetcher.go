package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"

	"realestate-scraper/config"
	"realestate-scraper/utils"
)

// Fetcher downloads one listing page. A false result means the page stayed
// unavailable after retries; callers skip it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, bool)
}

// FetchOptions configures both fetcher implementations.
type FetchOptions struct {
	UserAgent  string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	ChromeBin  string
}

// OptionsFromConfig maps the environment settings onto FetchOptions.
func OptionsFromConfig(cfg *config.Config) FetchOptions {
	return FetchOptions{
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.RequestTimeout,
		Attempts:   cfg.RetryCount,
		RetryDelay: cfg.RetryDelay,
		ChromeBin:  cfg.ChromeBin,
	}
}

// maxPageBytes bounds how much of a response body is read.
const maxPageBytes = 8 << 20

// HTTPFetcher fetches pages with a plain HTTP client.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	retry     *utils.RetryConfig
	logger    *utils.Logger
}

func NewHTTPFetcher(opts FetchOptions, logger *utils.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.Attempts,
			BaseDelay:   opts.RetryDelay,
			Logger:      logger,
		},
		logger: logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	var body string
	err := f.retry.Do(ctx, "fetch "+url, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.Header.Set("Accept-Language", "sr-RS,sr;q=0.9,en;q=0.6")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		r, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
		if err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		body = string(data)
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Warn("Giving up on page", "url", url, "error", err)
		}
		return "", false
	}
	return body, true
}
