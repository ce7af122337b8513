// Package pipeline runs one date through the whole chain: build the page URL,
// retrieve it, extract and normalize the rate table, then save it.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"bkam-rates/config"
	"bkam-rates/failure"
	"bkam-rates/fetcher"
	"bkam-rates/models"
	"bkam-rates/normalize"
	"bkam-rates/parser"
	"bkam-rates/source"
	"bkam-rates/storage"
)

// Retriever returns the markup of a page together with the attempts made
type Retriever interface {
	Retrieve(ctx context.Context, url string) (*fetcher.Page, []models.Attempt, error)
}

// Pipeline turns a date into a saved rate table
type Pipeline struct {
	source    source.Builder
	retriever Retriever
	parser    *parser.Parser
	csv       *storage.CSVWriter
	sinks     []storage.TableSink
	log       *zap.Logger
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithRetriever replaces the strategy chain built from configuration
func WithRetriever(r Retriever) Option {
	return func(p *Pipeline) {
		p.retriever = r
	}
}

// WithSinks adds optional destinations. Their failures are logged only.
func WithSinks(sinks ...storage.TableSink) Option {
	return func(p *Pipeline) {
		p.sinks = append(p.sinks, sinks...)
	}
}

// New builds a pipeline from configuration
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pipeline{
		source: NewSource(cfg.Source),
		parser: parser.NewParser(),
		csv:    storage.NewCSVWriter(cfg.Output.Dir),
		log:    log,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.retriever == nil {
		chain, err := fetcher.NewChain(cfg.Fetch, log)
		if err != nil {
			return nil, err
		}
		p.retriever = chain
	}

	return p, nil
}

// NewSource returns the URL builder for cfg. Sinks that record the page URL
// use it too so they show the page that was actually fetched.
func NewSource(cfg config.SourceConfig) source.Builder {
	return source.Builder{
		BaseURL: cfg.BaseURL,
		Block:   cfg.Block,
		Address: cfg.Address,
	}
}

// URL returns the page URL used for date
func (p *Pipeline) URL(date time.Time) string {
	return p.source.Build(date)
}

// Run fetches, parses, normalizes and saves the table for date. Every failure
// is written to the run log and returned classified by failure kind; the
// result is returned in both cases and carries the attempts made.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (*models.Result, error) {
	log := p.log.Sugar()
	url := p.URL(date)
	result := &models.Result{Date: date, URL: url}

	fail := func(err error) (*models.Result, error) {
		result.Err = err
		result.Table = nil
		return result, err
	}

	log.Infof("Fetching data from URL: %s", url)

	page, attempts, err := p.retriever.Retrieve(ctx, url)
	result.Attempts = attempts
	if err != nil {
		p.logFailure(url, err)
		return fail(err)
	}
	result.Strategy = page.Strategy

	table, err := p.parser.ExtractTable(page.HTML)
	if err != nil {
		p.logFailure(url, err)
		return fail(err)
	}

	table, err = normalize.Normalize(table)
	if err != nil {
		p.logFailure(url, err)
		return fail(err)
	}
	result.Table = table

	path, err := p.csv.Save(ctx, date, table)
	if err != nil {
		err = failure.New(failure.Unhandled, "save csv", err)
		p.logFailure(url, err)
		return fail(err)
	}
	result.OutputPath = path
	log.Infof("Data saved successfully to %s", path)

	for _, sink := range p.sinks {
		loc, err := sink.Save(ctx, date, table)
		if err != nil {
			log.Warnf("Failed to save data to %s: %v", sink.Name(), err)
			continue
		}
		if result.Locations == nil {
			result.Locations = make(map[string]string)
		}
		result.Locations[sink.Name()] = loc
		log.Infof("Data saved successfully to %s", loc)
	}

	return result, nil
}

// RunString parses s (dd/mm/yyyy or yyyy-mm-dd) and runs the pipeline for it
func (p *Pipeline) RunString(ctx context.Context, s string) (*models.Result, error) {
	date, err := source.ParseDate(s)
	if err != nil {
		p.log.Sugar().Errorf("An error occurred: %v", err)
		return &models.Result{Err: err}, err
	}
	return p.Run(ctx, date)
}

// Download returns the normalized table for date, or an empty table on any
// failure. The reason is only available in the run log.
func (p *Pipeline) Download(ctx context.Context, date time.Time) *models.Table {
	result, err := p.Run(ctx, date)
	if err != nil || result.Table == nil {
		return &models.Table{}
	}
	return result.Table
}

// RunRange runs every date from..to in order. A failed date does not stop
// the range; cancellation does.
func (p *Pipeline) RunRange(ctx context.Context, from, to time.Time, skipWeekends bool) ([]*models.Result, error) {
	dates, err := source.DateRange(from, to, skipWeekends)
	if err != nil {
		return nil, err
	}

	results := make([]*models.Result, 0, len(dates))
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, _ := p.Run(ctx, date)
		results = append(results, result)
	}
	return results, nil
}

func (p *Pipeline) logFailure(url string, err error) {
	log := p.log.Sugar()
	switch failure.KindOf(err) {
	case failure.HTTPError:
		log.Errorf("HTTP error occurred: %v", err)
	case failure.NoTableFound:
		log.Errorf("No table found in the HTML response for the URL: %s", url)
	case failure.AutomationError:
		log.Errorf("Browser automation error occurred: %v", err)
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Errorf("Request error occurred: %v", err)
			return
		}
		log.Errorf("An error occurred: %v", err)
	}
}
