package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bkam-rates/config"
	"bkam-rates/failure"
)

// Fetcher interface defines the contract for page retrieval strategies
type Fetcher interface {
	// Name identifies the strategy in logs and recorded attempts
	Name() string
	// Fetch retrieves the page at url and returns its markup
	Fetch(ctx context.Context, url string) (string, error)
}

// New builds the named strategy
func New(name string, cfg config.FetchConfig, log *zap.Logger) (Fetcher, error) {
	switch name {
	case config.StrategyHTTP:
		return NewCollyFetcher(cfg, log), nil
	case config.StrategyRod:
		return NewRodFetcher(cfg, log), nil
	case config.StrategyChromedp:
		return NewChromedpFetcher(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q", name)
	}
}

// NewChain builds the strategies listed in cfg.Strategies, in order
func NewChain(cfg config.FetchConfig, log *zap.Logger) (*Chain, error) {
	fetchers := make([]Fetcher, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		f, err := New(name, cfg, log)
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, f)
	}
	return NewChainOf(log, fetchers...), nil
}

// kindFor is the failure kind reported for a strategy's errors
func kindFor(strategy string) failure.Kind {
	if strategy == config.StrategyHTTP {
		return failure.HTTPError
	}
	return failure.AutomationError
}
