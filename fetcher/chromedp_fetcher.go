package fetcher

import (
	"context"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"bkam-rates/config"
	"bkam-rates/failure"
)

// ChromedpFetcher implements the Fetcher interface with chromedp, a second
// headless engine for when rod is blocked or unavailable.
type ChromedpFetcher struct {
	cfg config.FetchConfig
	log *zap.Logger
}

// NewChromedpFetcher creates a new ChromedpFetcher instance
func NewChromedpFetcher(cfg config.FetchConfig, log *zap.Logger) *ChromedpFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChromedpFetcher{cfg: cfg, log: log}
}

// Name implements the Fetcher interface
func (cf *ChromedpFetcher) Name() string {
	return config.StrategyChromedp
}

func (cf *ChromedpFetcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cf.cfg.Browser.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cf.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cf.cfg.UserAgent))
	}
	if bin := findBrowserBinary(cf.cfg.Browser.Bin); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}
	if dir := cf.cfg.Browser.UserDataDir; dir != "" {
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	return opts
}

// Fetch implements the Fetcher interface
func (cf *ChromedpFetcher) Fetch(ctx context.Context, url string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, cf.allocatorOptions()...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	runCtx, cancel := context.WithTimeout(browserCtx, cf.cfg.Timeout())
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(cf.cfg.Browser.Settle()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", failure.New(failure.AutomationError, "chromedp fetch", err)
	}

	cf.log.Sugar().Debugf("chromedp rendered %d bytes", len(html))
	return html, nil
}
