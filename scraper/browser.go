package scraper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"realestate-scraper/utils"
)

// BrowserFetcher renders pages in headless Chrome. It shares one browser
// across calls and opens a tab per page, so it is safe for concurrent use.
type BrowserFetcher struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	timeout    time.Duration
	retry      *utils.RetryConfig
	logger     *utils.Logger
}

// NewBrowserFetcher starts the browser. Close must be called to stop it.
func NewBrowserFetcher(opts FetchOptions, logger *utils.Logger) (*BrowserFetcher, error) {
	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("Using browser binary", "path", chromeBin)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent(opts.UserAgent),
	)
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	return &BrowserFetcher{
		browserCtx: browserCtx,
		cancel:     cancel,
		timeout:    opts.Timeout,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.Attempts,
			BaseDelay:   opts.RetryDelay,
			Logger:      logger,
		},
		logger: logger,
	}, nil
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	var html string
	err := b.retry.Do(ctx, "render "+url, func(ctx context.Context) error {
		tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
		defer cancelTab()
		stop := context.AfterFunc(ctx, cancelTab)
		defer stop()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
		defer cancelTimeout()

		return chromedp.Run(tabCtx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
	})
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("Giving up on page", "url", url, "error", err)
		}
		return "", false
	}
	return html, true
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() error {
	b.cancel()
	return nil
}

// findChromeBinary looks for a Chrome or Chromium binary in common locations.
func findChromeBinary() string {
	if p := os.Getenv("CHROME_BIN"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	for _, p := range []string{
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
