package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/infblueocean/newsmap/internal/config"
	"github.com/infblueocean/newsmap/internal/feed"
)

const fetchFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
<item><title>Newer</title><link>http://example.com/2</link><pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate></item>
<item><title>Older</title><link>http://example.com/1</link><pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate></item>
</channel></rss>`

func fetchConfig(t *testing.T, feedURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "newsmap.db")
	cfg.EventLog = filepath.Join(dir, "events.jsonl")
	cfg.ProxyURL = ""
	cfg.ScrapeArticles = false
	cfg.Analysis.Enabled = false
	cfg.Analysis.APIKey = ""
	cfg.Sources = []feed.Source{{Name: "Local", URL: feedURL}}
	return cfg
}

func TestFetchPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fetchFeed))
	}))
	defer srv.Close()

	cfg := fetchConfig(t, srv.URL)
	p, closeAll := openPipeline(cfg)
	defer closeAll()

	var stdout, stderr bytes.Buffer
	if code := fetchPass(context.Background(), p, cfg.Sources, 5, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"✓ Local", "2 unique articles, 2 new", "Newer"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n, _ := p.Store.ArticleCount(); n != 2 {
		t.Errorf("expected 2 stored articles, got %d", n)
	}
}

func TestFetchPassCancelledFlushesEventLog(t *testing.T) {
	cfg := fetchConfig(t, "http://127.0.0.1:1/feed")
	p, closeAll := openPipeline(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := fetchPass(ctx, p, cfg.Sources, 5, &stdout, &stderr)
	closeAll()

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "ingestion stopped") {
		t.Errorf("unexpected stderr %q", stderr.String())
	}
	data, err := os.ReadFile(cfg.EventLog)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"ingest.cancel"`) {
		t.Errorf("event log missing ingest.cancel:\n%s", data)
	}
}
