package fetcher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"bkam-rates/config"
	"bkam-rates/failure"
)

// RodFetcher implements the Fetcher interface using rod (headless browser).
// A browser is launched for every Fetch and torn down before it returns.
type RodFetcher struct {
	cfg config.FetchConfig
	log *zap.Logger
}

// NewRodFetcher creates a new RodFetcher instance
func NewRodFetcher(cfg config.FetchConfig, log *zap.Logger) *RodFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RodFetcher{cfg: cfg, log: log}
}

// Name implements the Fetcher interface
func (rf *RodFetcher) Name() string {
	return config.StrategyRod
}

func (rf *RodFetcher) newLauncher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(rf.cfg.Browser.Headless).
		Set("disable-blink-features", "AutomationControlled").
		NoSandbox(true).
		Leakless(false). // Disable leakless to avoid antivirus issues
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("disable-popup-blocking").
		Set("disable-sync").
		Set("disable-translate").
		Set("mute-audio").
		Set("no-zygote")

	if dir := rf.cfg.Browser.UserDataDir; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			rf.log.Sugar().Warnf("Failed to create browser data directory %s: %v", dir, err)
		} else {
			l = l.UserDataDir(dir)
		}
	}

	if bin := findBrowserBinary(rf.cfg.Browser.Bin); bin != "" {
		l = l.Bin(bin)
	}

	return l
}

// Fetch implements the Fetcher interface
func (rf *RodFetcher) Fetch(ctx context.Context, url string) (html string, err error) {
	ctx, cancel := context.WithTimeout(ctx, rf.cfg.Timeout())
	defer cancel()

	// rod's Must* helpers and CDP plumbing may panic; report it as an automation failure
	defer func() {
		if r := recover(); r != nil {
			html = ""
			err = failure.Newf(failure.AutomationError, "rod fetch", "panic: %v", r)
		}
	}()

	l := rf.newLauncher(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return "", failure.New(failure.AutomationError, "rod launch", err)
	}
	defer func() {
		l.Kill()
		if rf.cfg.Browser.UserDataDir == "" {
			// temporary profile created by the launcher
			l.Cleanup()
		}
	}()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", failure.New(failure.AutomationError, "rod connect", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			rf.log.Sugar().Debugf("Failed to close browser: %v", cerr)
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", failure.New(failure.AutomationError, "rod page", err)
	}
	defer page.Close()

	if ua := rf.cfg.UserAgent; ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			rf.log.Sugar().Debugf("Failed to set user agent: %v", err)
		}
	}

	if err := page.Navigate(url); err != nil {
		return "", failure.New(failure.AutomationError, "rod navigate", fmt.Errorf("failed to navigate: %w", err))
	}

	if err := page.WaitLoad(); err != nil {
		return "", failure.New(failure.AutomationError, "rod wait load", err)
	}

	// WaitStable covers network idleness and a quiet DOM
	settle := rf.cfg.Browser.Settle()
	if settle < 500*time.Millisecond {
		settle = 500 * time.Millisecond
	}
	if err := page.WaitStable(settle); err != nil {
		rf.log.Sugar().Warnf("Page did not stabilize, continuing anyway: %v", err)
	}

	html, err = page.HTML()
	if err != nil {
		return "", failure.New(failure.AutomationError, "rod html", fmt.Errorf("failed to get HTML: %w", err))
	}

	return html, nil
}
