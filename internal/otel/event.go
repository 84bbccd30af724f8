// Package otel provides structured observability for newsmap.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the dashboard.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Feed parsing
	KindParseError EventKind = "feed.parse_error"
	KindDateError  EventKind = "feed.date_error"

	// Feed fetching
	KindFetchStart    EventKind = "fetch.start"
	KindFetchComplete EventKind = "fetch.complete"
	KindFetchError    EventKind = "fetch.error"

	// Article scraping
	KindScrapeStart    EventKind = "scrape.start"
	KindScrapeComplete EventKind = "scrape.complete"
	KindScrapeError    EventKind = "scrape.error"
	KindScrapeSkip     EventKind = "scrape.skip"

	// Ingestion runs
	KindIngestStart    EventKind = "ingest.start"
	KindIngestSource   EventKind = "ingest.source"
	KindIngestDrop     EventKind = "ingest.drop"
	KindIngestComplete EventKind = "ingest.complete"
	KindIngestCancel   EventKind = "ingest.cancel"

	// Classification
	KindAnalyzeComplete EventKind = "analyze.complete"
	KindAnalyzeError    EventKind = "analyze.error"

	// Store events
	KindStoreError EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "feed", "scrape", "fetch", "ingest"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire run
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Source    string         `json:"source,omitempty"`
	URL       string         `json:"url,omitempty"`
	Status    int            `json:"status,omitempty"` // HTTP status code
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
