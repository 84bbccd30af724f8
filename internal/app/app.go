// Package app builds the newsmap pipeline from a Config. Both binaries
// share it so the TUI and the CLI fetch, scrape and classify identically.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/infblueocean/newsmap/internal/analysis"
	"github.com/infblueocean/newsmap/internal/config"
	"github.com/infblueocean/newsmap/internal/coord"
	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/fetch"
	"github.com/infblueocean/newsmap/internal/ingest"
	"github.com/infblueocean/newsmap/internal/otel"
	"github.com/infblueocean/newsmap/internal/scrape"
	"github.com/infblueocean/newsmap/internal/store"
)

// Pipeline holds the wired components.
type Pipeline struct {
	Config       *config.Config
	Logger       *otel.Logger
	Store        *store.Store
	Parser       *feed.Parser
	Scraper      *scrape.Scraper // nil when scraping is disabled
	Fetcher      *fetch.Fetcher
	Orchestrator *ingest.Orchestrator
	Classifier   analysis.Classifier // nil when analysis is disabled
}

// New opens the store and builds every component. l may be nil.
func New(cfg *config.Config, l *otel.Logger) (*Pipeline, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Config: cfg, Logger: l, Store: st}

	p.Parser = feed.NewParser(l)
	p.Parser.Placeholder = cfg.PlaceholderImageURL

	fopts := fetch.Options{
		ProxyURL:      cfg.ProxyURL,
		Timeout:       cfg.FeedTimeout.Std(),
		ScrapeWorkers: cfg.ScrapeWorkers,
	}
	if cfg.ScrapeArticles {
		p.Scraper = scrape.NewScraper(scrape.Options{
			Timeout:     cfg.ScrapeTimeout.Std(),
			RatePerHost: cfg.ScrapeRatePerHost,
		}, l)
		p.Fetcher = fetch.NewFetcher(fopts, p.Parser, p.Scraper, l)
	} else {
		// Literal nil so the interface value is nil, not a typed nil pointer.
		p.Fetcher = fetch.NewFetcher(fopts, p.Parser, nil, l)
	}

	p.Orchestrator = ingest.New(p.Fetcher, ingest.Options{Concurrency: cfg.Concurrency}, l)

	if cfg.AnalysisReady() {
		p.Classifier = analysis.NewOpenAIClassifier(cfg.Analysis.APIKey, cfg.Analysis.Model, cfg.Analysis.BaseURL, l)
	}
	return p, nil
}

// Coordinator returns a background coordinator over the pipeline.
func (p *Pipeline) Coordinator() *coord.Coordinator {
	return coord.New(p.Store, p.Orchestrator, p.Classifier, p.Config.Sources, coord.Options{
		Interval:     p.Config.RefreshInterval.Std(),
		Schedule:     p.Config.RefreshSchedule,
		AnalyzeLimit: p.Config.Analysis.Limit,
	}, p.Logger)
}

// Close releases the store.
func (p *Pipeline) Close() error {
	return p.Store.Close()
}

// OpenLogger opens the configured JSONL event log with ring attached. An
// empty EventLog yields a logger that only feeds the ring.
func OpenLogger(cfg *config.Config, ring *otel.RingBuffer) (*otel.Logger, func(), error) {
	if cfg.EventLog == "" {
		l := otel.NewNullLogger()
		l.SetRingBuffer(ring)
		return l, l.Close, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.EventLog), 0755); err != nil {
		return nil, nil, fmt.Errorf("create event log directory: %w", err)
	}
	l, closeFn, err := otel.OpenFile(cfg.EventLog)
	if err != nil {
		return nil, nil, err
	}
	l.SetRingBuffer(ring)
	return l, closeFn, nil
}
