package fetcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"go.uber.org/zap"

	"bkam-rates/config"
	"bkam-rates/failure"
)

// CollyFetcher implements the Fetcher interface with a plain HTTP request (colly)
type CollyFetcher struct {
	cfg config.FetchConfig
	log *zap.Logger
}

// NewCollyFetcher creates a new CollyFetcher instance
func NewCollyFetcher(cfg config.FetchConfig, log *zap.Logger) *CollyFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &CollyFetcher{cfg: cfg, log: log}
}

// Name implements the Fetcher interface
func (cf *CollyFetcher) Name() string {
	return config.StrategyHTTP
}

// newCollector builds a fresh collector per call so no state leaks between dates
func (cf *CollyFetcher) newCollector(ctx context.Context) *colly.Collector {
	options := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		// status classification happens in Fetch
		colly.ParseHTTPErrorResponse(),
	}
	if cf.cfg.UserAgent != "" {
		options = append(options, colly.UserAgent(cf.cfg.UserAgent))
	}

	c := colly.NewCollector(options...)
	c.SetRequestTimeout(cf.cfg.Timeout())

	if cf.cfg.CloudflareBypass {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		c.WithTransport(cloudflarebp.AddCloudFlareByPass(transport))
	}

	if cf.cfg.RotateUserAgent {
		extensions.RandomUserAgent(c)
	}
	extensions.Referer(c)

	c.OnRequest(func(r *colly.Request) {
		for key, value := range cf.cfg.Headers {
			r.Headers.Set(key, value)
		}
	})

	return c
}

// Fetch implements the Fetcher interface
func (cf *CollyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := cf.wait(ctx); err != nil {
		return "", failure.New(failure.Unhandled, "http fetch", err)
	}

	c := cf.newCollector(ctx)

	var body []byte
	status := 0

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
		cf.log.Sugar().Infof("HTTP response status code: %d", status)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
			if status != 0 {
				cf.log.Sugar().Infof("HTTP response status code: %d", status)
			}
		}
		cf.log.Sugar().Debugf("Error fetching %s: %v", url, err)
	})

	if err := c.Visit(url); err != nil {
		return "", failure.HTTP("http fetch", status, err)
	}
	c.Wait()

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", failure.HTTP("http fetch", status, fmt.Errorf("unexpected status %d", status))
	}

	cf.log.Sugar().Debugf("Received %d bytes", len(body))
	return string(body), nil
}

// wait sleeps for a random duration in [MinDelay, MaxDelay] unless ctx ends first
func (cf *CollyFetcher) wait(ctx context.Context) error {
	d := cf.delay()
	if d <= 0 {
		return ctx.Err()
	}

	cf.log.Sugar().Debugf("Waiting %v before request", d)
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (cf *CollyFetcher) delay() time.Duration {
	lo, hi := cf.cfg.MinDelay(), cf.cfg.MaxDelay()
	if hi <= 0 {
		return 0
	}
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}
