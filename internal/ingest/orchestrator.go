// Package ingest runs a full ingestion pass over a list of feed sources:
// fetch each source, drop duplicate articles, report per-source progress,
// and return one list sorted newest first.
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/otel"
)

// Fetcher retrieves the enriched articles of one source.
type Fetcher interface {
	Fetch(ctx context.Context, src feed.Source) ([]feed.RawArticle, error)
}

// SourceResult reports one processed source. Articles holds only the
// articles this source contributed after deduplication; it is empty when
// Err is set.
type SourceResult struct {
	Index    int
	Source   feed.Source
	Articles []feed.RawArticle
	Err      error
}

// ErrorMessage returns the operator-facing failure text, or "" on success.
func (r SourceResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Options configures an Orchestrator.
type Options struct {
	// Concurrency > 1 fetches that many sources at once. Results are still
	// merged and reported in source-list order.
	Concurrency int
}

// Orchestrator owns ingestion runs. Each run starts with fresh state, so one
// Orchestrator may serve any number of runs, including concurrent ones.
type Orchestrator struct {
	fetcher     Fetcher
	concurrency int
	logger      *otel.Logger
}

// New creates an Orchestrator.
func New(f Fetcher, opts Options, l *otel.Logger) *Orchestrator {
	return &Orchestrator{
		fetcher:     f,
		concurrency: opts.Concurrency,
		logger:      l,
	}
}

// outcome is the raw result of fetching one source.
type outcome struct {
	articles []feed.RawArticle
	err      error
}

// Ingest processes sources and returns the merged, deduplicated list sorted
// newest first. onSourceProcessed, if non-nil, is called exactly once per
// processed source, in source-list order, from the calling goroutine.
//
// A failing source never aborts the run. On cancellation Ingest stops
// between sources and returns what it accumulated along with ctx.Err();
// sources not reached get no callback.
func (o *Orchestrator) Ingest(ctx context.Context, sources []feed.Source, onSourceProcessed func(SourceResult)) ([]feed.RawArticle, error) {
	start := time.Now()
	o.logger.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindIngestStart, Comp: "ingest", Count: len(sources)})

	m := &merger{
		seen:   make(map[string]struct{}),
		all:    make([]feed.RawArticle, 0),
		logger: o.logger,
	}

	var completed bool
	if o.concurrency > 1 && len(sources) > 1 {
		completed = o.runParallel(ctx, sources, m, onSourceProcessed)
	} else {
		completed = o.runSequential(ctx, sources, m, onSourceProcessed)
	}

	SortByDate(m.all)

	if !completed {
		o.logger.Emit(otel.Event{
			Level: otel.LevelWarn,
			Kind:  otel.KindIngestCancel,
			Comp:  "ingest",
			Count: len(m.all),
			Dur:   time.Since(start),
			Err:   ctx.Err().Error(),
		})
		return m.all, ctx.Err()
	}

	o.logger.Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindIngestComplete,
		Comp:  "ingest",
		Count: len(m.all),
		Dur:   time.Since(start),
		Extra: map[string]any{"sources": len(sources), "failed": m.failed},
	})
	return m.all, nil
}

// runSequential fetches one source at a time. It reports false when the run
// was cancelled before every source was processed.
func (o *Orchestrator) runSequential(ctx context.Context, sources []feed.Source, m *merger, cb func(SourceResult)) bool {
	for i, src := range sources {
		if ctx.Err() != nil {
			return false
		}
		articles, err := o.fetcher.Fetch(ctx, src)
		if cancelled(ctx, err) {
			return false
		}
		m.add(i, src, outcome{articles: articles, err: err}, cb)
	}
	return true
}

// runParallel fetches up to o.concurrency sources at once. Each source
// writes into its own slot and the merge loop drains slots in index order.
func (o *Orchestrator) runParallel(ctx context.Context, sources []feed.Source, m *merger, cb func(SourceResult)) bool {
	slots := make([]chan outcome, len(sources))
	for i := range slots {
		slots[i] = make(chan outcome, 1)
	}

	launched := make(chan struct{})
	go func() {
		defer close(launched)
		var g errgroup.Group
		g.SetLimit(o.concurrency)
		for i, src := range sources {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				articles, err := o.fetcher.Fetch(ctx, src)
				slots[i] <- outcome{articles: articles, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() { <-launched }()

	for i, src := range sources {
		if ctx.Err() != nil {
			return false
		}
		select {
		case out := <-slots[i]:
			if cancelled(ctx, out.err) {
				return false
			}
			m.add(i, src, out, cb)
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// cancelled reports whether err is the run's own cancellation rather than a
// source failure.
func cancelled(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// merger holds the state of one run. Only the goroutine running Ingest
// touches it.
type merger struct {
	seen   map[string]struct{}
	all    []feed.RawArticle
	failed int
	logger *otel.Logger
}

func (m *merger) add(index int, src feed.Source, out outcome, cb func(SourceResult)) {
	res := SourceResult{Index: index, Source: src, Articles: []feed.RawArticle{}}

	if out.err != nil {
		m.failed++
		res.Err = out.err
		m.logger.Emit(otel.Event{
			Level:  otel.LevelWarn,
			Kind:   otel.KindIngestSource,
			Comp:   "ingest",
			Source: src.Name,
			URL:    src.URL,
			Err:    out.err.Error(),
		})
		if cb != nil {
			cb(res)
		}
		return
	}

	dups := 0
	for _, a := range out.articles {
		if strings.TrimSpace(a.ID) == "" {
			m.logger.Emit(otel.Event{
				Level:  otel.LevelWarn,
				Kind:   otel.KindIngestDrop,
				Comp:   "ingest",
				Source: src.Name,
				Msg:    "article without id dropped: " + a.Title,
			})
			continue
		}
		if _, ok := m.seen[a.ID]; ok {
			dups++
			continue
		}
		m.seen[a.ID] = struct{}{}
		res.Articles = append(res.Articles, a)
	}
	m.all = append(m.all, res.Articles...)

	m.logger.Emit(otel.Event{
		Level:  otel.LevelInfo,
		Kind:   otel.KindIngestSource,
		Comp:   "ingest",
		Source: src.Name,
		URL:    src.URL,
		Count:  len(res.Articles),
		Extra:  map[string]any{"duplicates": dups},
	})
	if cb != nil {
		cb(res)
	}
}
