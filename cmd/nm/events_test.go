package main

import (
	"strings"
	"testing"
	"time"

	"github.com/infblueocean/newsmap/internal/otel"
)

const sampleLog = `{"t":"2024-01-02T10:00:00Z","level":"info","kind":"fetch.complete","comp":"fetch","source":"BBC","count":12,"dur_ms":340.5}
not json
{"t":"2024-01-02T10:00:01Z","level":"error","kind":"fetch.error","comp":"fetch","source":"Reuters","status":404,"err":"failed to fetch"}

{"t":"2024-01-02T10:00:02Z","level":"debug","kind":"scrape.skip","comp":"scrape","source":"BBC"}
{"t":"2024-01-02T10:00:03Z","level":"info","kind":"scrape.complete","comp":"scrape","source":"BBC","dur_ms":0.5}
`

func TestReadTailLines(t *testing.T) {
	all := func(otel.Event) bool { return true }

	tests := []struct {
		name  string
		n     int
		match func(otel.Event) bool
		want  []otel.EventKind
	}{
		{"all", 10, all, []otel.EventKind{otel.KindFetchComplete, otel.KindFetchError, otel.KindScrapeSkip, otel.KindScrapeComplete}},
		{"tail 2", 2, all, []otel.EventKind{otel.KindScrapeSkip, otel.KindScrapeComplete}},
		{"zero", 0, all, nil},
		{"kind prefix", 10, func(e otel.Event) bool { return strings.HasPrefix(string(e.Kind), "fetch") },
			[]otel.EventKind{otel.KindFetchComplete, otel.KindFetchError}},
		{"min level warn", 10, func(e otel.Event) bool { return levelRank(e.Level) >= levelRank(otel.LevelWarn) },
			[]otel.EventKind{otel.KindFetchError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readTailLines(strings.NewReader(sampleLog), tt.n, tt.match)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d lines, want %d", len(got), len(tt.want))
			}
			for i, l := range got {
				if l.ev.Kind != tt.want[i] {
					t.Errorf("line %d kind = %s, want %s", i, l.ev.Kind, tt.want[i])
				}
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	ev := otel.Event{
		Time:   time.Date(2024, 1, 2, 10, 0, 1, 0, time.UTC),
		Level:  otel.LevelError,
		Kind:   otel.KindFetchError,
		Comp:   "fetch",
		Source: "Reuters",
		Status: 404,
		DurMs:  12.3,
		Err:    "failed to fetch",
	}
	got := formatEvent(ev)
	for _, want := range []string{"10:00:01.000", "ERROR", "fetch.error", "src=Reuters", "status=404", "(12.3ms)", "err=failed to fetch"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatEvent() = %q, missing %q", got, want)
		}
	}
}

func TestDurPrecision(t *testing.T) {
	tests := []struct {
		ms   float64
		want int
	}{
		{250, 0},
		{12.5, 1},
		{0.3, 2},
	}
	for _, tt := range tests {
		if got := durPrecision(tt.ms); got != tt.want {
			t.Errorf("durPrecision(%v) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate long = %q", got)
	}
}
