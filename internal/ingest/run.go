package ingest

import (
	"context"

	"github.com/infblueocean/newsmap/internal/feed"
)

// Run is an ingestion pass executing in the background.
type Run struct {
	// Events delivers one SourceResult per processed source, in source
	// order, and is closed when the run ends. It is buffered for every
	// source, so an idle reader never stalls the run.
	Events <-chan SourceResult

	done     chan struct{}
	articles []feed.RawArticle
	err      error
}

// Stream starts Ingest in a new goroutine and reports progress on the
// returned Run's Events channel.
func (o *Orchestrator) Stream(ctx context.Context, sources []feed.Source) *Run {
	events := make(chan SourceResult, len(sources))
	r := &Run{Events: events, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		defer close(events)
		r.articles, r.err = o.Ingest(ctx, sources, func(res SourceResult) {
			events <- res
		})
	}()
	return r
}

// Wait blocks until the run finishes and returns Ingest's results.
func (r *Run) Wait() ([]feed.RawArticle, error) {
	<-r.done
	return r.articles, r.err
}
