package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/infblueocean/newsmap/internal/otel"
)

// eventsPanelChrome is the number of terminal lines consumed by
// EventsPanel's border (top + bottom).
const eventsPanelChrome = 2

// eventsPanel renders pipeline counters and the most recent events.
// Pure function with no side effects. Returns empty string if ring is nil.
func eventsPanel(ring *otel.RingBuffer, width, height int) string {
	if ring == nil {
		return ""
	}

	kinds := ring.CountByKind()
	recent := ring.Last(20)

	var lines []string
	lines = append(lines, EventsHeader.Render("Pipeline"))
	lines = append(lines, fmt.Sprintf("  Feeds:    %d ok, %d failed",
		kinds[otel.KindFetchComplete], kinds[otel.KindFetchError]))
	lines = append(lines, fmt.Sprintf("  Scrapes:  %d ok, %d failed, %d skipped",
		kinds[otel.KindScrapeComplete], kinds[otel.KindScrapeError], kinds[otel.KindScrapeSkip]))
	lines = append(lines, fmt.Sprintf("  Analysis: %d ok, %d failed",
		kinds[otel.KindAnalyzeComplete], kinds[otel.KindAnalyzeError]))
	lines = append(lines, fmt.Sprintf("  Buffer:   %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	lines = append(lines, EventsHeader.Render("Recent"))
	// Newest first so truncation drops the oldest.
	for i := len(recent) - 1; i >= 0; i-- {
		lines = append(lines, eventLine(recent[i]))
	}

	maxHeight := height - eventsPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := width - 2
	if panelWidth < 20 {
		panelWidth = 20
	}
	return EventsPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

func eventLine(e otel.Event) string {
	line := fmt.Sprintf("  %6s  %-16s", formatAge(time.Since(e.Time)), string(e.Kind))
	if e.Source != "" {
		line += "  " + truncateRunes(e.Source, 20)
	}
	if e.Msg != "" {
		line += "  " + truncateRunes(e.Msg, 40)
	}
	if e.Err != "" {
		line += "  ERR:" + truncateRunes(e.Err, 50)
	}
	switch e.Level {
	case otel.LevelError:
		return EventError.Render(line)
	case otel.LevelWarn:
		return EventWarn.Render(line)
	}
	return line
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// truncateRunes shortens s to n runes, marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
