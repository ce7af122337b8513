package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bkam-rates/failure"
	"bkam-rates/models"
)

// ErrNoStrategies is returned by a chain with nothing to try
var ErrNoStrategies = errors.New("no fetch strategies configured")

// Page is markup retrieved by one of the chain's strategies
type Page struct {
	HTML     string
	Strategy string
}

// Chain tries an ordered list of strategies until one returns markup.
// Every try is recorded as an Attempt.
type Chain struct {
	fetchers []Fetcher
	log      *zap.Logger
}

// NewChainOf creates a chain over the given strategies, tried in order
func NewChainOf(log *zap.Logger, fetchers ...Fetcher) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chain{fetchers: fetchers, log: log}
}

// Strategies returns the strategy names in the order they are tried
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.fetchers))
	for _, f := range c.fetchers {
		names = append(names, f.Name())
	}
	return names
}

// Name implements the Fetcher interface
func (c *Chain) Name() string {
	return "chain(" + strings.Join(c.Strategies(), ",") + ")"
}

// Fetch implements the Fetcher interface, discarding the attempt record
func (c *Chain) Fetch(ctx context.Context, url string) (string, error) {
	page, _, err := c.Retrieve(ctx, url)
	if err != nil {
		return "", err
	}
	return page.HTML, nil
}

// Retrieve runs the strategies in order. It returns the first non-empty page,
// or the last strategy's error when every strategy fails. Attempts are
// returned in both cases.
func (c *Chain) Retrieve(ctx context.Context, url string) (*Page, []models.Attempt, error) {
	if len(c.fetchers) == 0 {
		return nil, nil, failure.New(failure.Unhandled, "fetch", ErrNoStrategies)
	}

	var attempts []models.Attempt
	var lastErr error

	for _, f := range c.fetchers {
		if err := ctx.Err(); err != nil {
			return nil, attempts, failure.New(failure.Unhandled, "fetch", err)
		}

		c.log.Sugar().Infof("Trying strategy %s for URL: %s", f.Name(), url)
		start := time.Now()
		html, err := safeFetch(ctx, f, url)
		attempt := models.Attempt{
			Strategy: f.Name(),
			Bytes:    len(html),
			Duration: time.Since(start),
		}

		switch {
		case err != nil:
			attempt.Outcome = models.OutcomeFailed
			attempt.ErrorKind = string(failure.KindOf(err))
			attempt.Error = err.Error()
			lastErr = err
			c.log.Sugar().Errorf("Strategy %s failed: %v", f.Name(), err)
		case strings.TrimSpace(html) == "":
			err = failure.Newf(kindFor(f.Name()), f.Name(), "empty response body")
			attempt.Outcome = models.OutcomeEmpty
			attempt.ErrorKind = string(failure.KindOf(err))
			attempt.Error = err.Error()
			lastErr = err
			c.log.Sugar().Errorf("Strategy %s returned an empty page", f.Name())
		default:
			attempt.Outcome = models.OutcomeOK
			attempts = append(attempts, attempt)
			c.log.Sugar().Infof("Strategy %s succeeded (%d bytes in %v)", f.Name(), len(html), attempt.Duration.Round(time.Millisecond))
			return &Page{HTML: html, Strategy: f.Name()}, attempts, nil
		}

		attempts = append(attempts, attempt)
	}

	return nil, attempts, lastErr
}

// safeFetch runs f.Fetch and converts a panic into an Unhandled error
func safeFetch(ctx context.Context, f Fetcher, url string) (html string, err error) {
	defer func() {
		if r := recover(); r != nil {
			html = ""
			err = failure.New(failure.Unhandled, f.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	return f.Fetch(ctx, url)
}
