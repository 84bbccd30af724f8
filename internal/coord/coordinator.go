// Package coord runs ingestion in the background: immediately, then on a
// fixed interval or on demand, persisting results and classifying new
// articles.
package coord

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/robfig/cron/v3"

	"github.com/infblueocean/newsmap/internal/analysis"
	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/ingest"
	"github.com/infblueocean/newsmap/internal/otel"
	"github.com/infblueocean/newsmap/internal/store"
	"github.com/infblueocean/newsmap/internal/ui"
)

// DefaultInterval is the time between ingestion passes.
const DefaultInterval = 15 * time.Minute

// ingester interface for dependency injection (testing).
type ingester interface {
	Ingest(ctx context.Context, sources []feed.Source, onSourceProcessed func(ingest.SourceResult)) ([]feed.RawArticle, error)
}

// Sender receives UI messages. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Options configures a Coordinator.
type Options struct {
	Interval time.Duration
	// Schedule is a standard cron expression (or descriptor such as
	// "@hourly"). A valid schedule replaces Interval.
	Schedule     string
	AnalyzeLimit int
}

// Coordinator manages background ingestion.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	store        *store.Store
	ingester     ingester
	classifier   analysis.Classifier // optional: nil disables analysis
	sources      []feed.Source       // IMMUTABLE: set at construction, never modified
	interval     time.Duration
	schedule     cron.Schedule // nil: fixed interval
	analyzeLimit int
	logger       *otel.Logger

	refresh chan struct{}
	wg      sync.WaitGroup
}

// New creates a Coordinator. The classifier is optional.
func New(s *store.Store, in ingester, c analysis.Classifier, sources []feed.Source, opts Options, l *otel.Logger) *Coordinator {
	sourcesCopy := make([]feed.Source, len(sources))
	copy(sourcesCopy, sources)

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	var sched cron.Schedule
	if opts.Schedule != "" {
		var err error
		if sched, err = cron.ParseStandard(opts.Schedule); err != nil {
			l.Error(otel.KindError, "coord", fmt.Errorf("refresh schedule %q: %w", opts.Schedule, err))
		}
	}
	return &Coordinator{
		store:        s,
		ingester:     in,
		classifier:   c,
		sources:      sourcesCopy,
		interval:     opts.Interval,
		schedule:     sched,
		analyzeLimit: opts.AnalyzeLimit,
		logger:       l,
		refresh:      make(chan struct{}, 1),
	}
}

// Start begins background ingestion. Call with a cancellable context.
// Runs one pass immediately, then on the schedule (or every interval) and
// on Refresh. program may be nil.
func (c *Coordinator) Start(ctx context.Context, program Sender) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.RunOnce(ctx, program)

		timer := time.NewTimer(c.next(time.Now()))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				c.RunOnce(ctx, program)
			case <-c.refresh:
				c.RunOnce(ctx, program)
			}
			timer.Reset(c.next(time.Now()))
		}
	}()
}

// next returns the wait before the next scheduled pass.
func (c *Coordinator) next(now time.Time) time.Duration {
	if c.schedule == nil {
		return c.interval
	}
	return c.schedule.Next(now).Sub(now)
}

// Refresh requests a pass as soon as the current one ends. Requests made
// while one is already pending are merged.
func (c *Coordinator) Refresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// RunOnce performs one ingestion pass followed by analysis and returns the
// completion message it also sends to program.
func (c *Coordinator) RunOnce(ctx context.Context, program Sender) ui.RefreshComplete {
	send(program, ui.RefreshStarted{Sources: c.sources})

	newTotal := 0
	articles, err := c.ingester.Ingest(ctx, c.sources, func(r ingest.SourceResult) {
		n := c.Persist(r)
		newTotal += n
		send(program, ui.SourceProcessed{Result: r, New: n})
	})

	done := ui.RefreshComplete{Articles: len(articles), New: newTotal, Err: err}
	if err == nil {
		done.Analyzed = c.Analyze(ctx)
	}
	send(program, done)
	return done
}

// Persist saves one source's outcome and returns the number of new
// articles. Store failures are logged; they do not stop the pass.
func (c *Coordinator) Persist(r ingest.SourceResult) int {
	if err := c.store.UpdateSourceStatus(r.Source, len(r.Articles), r.ErrorMessage()); err != nil {
		c.logger.Error(otel.KindStoreError, "coord", err)
	}
	if len(r.Articles) == 0 {
		return 0
	}
	n, err := c.store.SaveArticles(r.Articles)
	if err != nil {
		c.logger.Error(otel.KindStoreError, "coord", err)
	}
	return n
}

// Analyze classifies up to the configured limit of stored articles that
// have no analysis yet and returns how many were saved. Failed
// classifications are not saved, so those articles stay pending. A nil
// classifier makes it a no-op.
func (c *Coordinator) Analyze(ctx context.Context) int {
	if c.classifier == nil {
		return 0
	}

	pending, err := c.store.ArticlesNeedingAnalysis(c.limit())
	if err != nil {
		c.logger.Error(otel.KindStoreError, "coord", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	start := time.Now()
	analyzed, _ := analysis.Analyze(ctx, c.classifier, pending, c.limit())
	saved, failed := 0, 0
	for _, a := range analyzed {
		if a.Failed {
			failed++
			c.logger.Emit(otel.Event{
				Level:  otel.LevelWarn,
				Kind:   otel.KindAnalyzeError,
				Comp:   "coord",
				Source: a.Source,
				URL:    a.Link,
				Err:    a.Location,
			})
			continue
		}
		if err := c.store.SaveAnalysis(a); err != nil {
			c.logger.Error(otel.KindStoreError, "coord", err)
			continue
		}
		saved++
	}

	c.logger.Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindAnalyzeComplete,
		Comp:  "coord",
		Count: saved,
		Dur:   time.Since(start),
		Extra: map[string]any{"failed": failed},
	})
	return saved
}

func (c *Coordinator) limit() int {
	if c.analyzeLimit <= 0 {
		return analysis.DefaultLimit
	}
	return c.analyzeLimit
}

// send handles a nil program gracefully for testing.
func send(program Sender, msg tea.Msg) {
	if program != nil {
		program.Send(msg)
	}
}
