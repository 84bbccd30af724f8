// Package ui provides the Bubble Tea dashboard for newsmap.
package ui

import (
	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/ingest"
	"github.com/infblueocean/newsmap/internal/store"
)

// RefreshStarted is sent when an ingestion pass begins.
type RefreshStarted struct {
	Sources []feed.Source
}

// SourceProcessed is sent once per source, in source order, as a pass
// progresses. New counts articles not previously stored.
type SourceProcessed struct {
	Result ingest.SourceResult
	New    int
}

// RefreshComplete is sent when a pass (and its analysis step) finishes.
type RefreshComplete struct {
	Articles int // unique articles this pass
	New      int
	Analyzed int
	Err      error
}

// ArticlesLoaded carries the stored articles and source statuses.
type ArticlesLoaded struct {
	Articles []feed.RawArticle
	Statuses []store.SourceStatus
	Err      error
}

// EventsTick triggers a redraw of the event panel.
type EventsTick struct{}
