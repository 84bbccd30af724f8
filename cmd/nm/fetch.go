package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/infblueocean/newsmap/internal/app"
	"github.com/infblueocean/newsmap/internal/feed"
)

func runFetch() int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	noScrape := fs.Bool("no-scrape", false, "Skip article page scraping")
	noAnalyze := fs.Bool("no-analyze", false, "Skip classification even if OPENAI_API_KEY is set")
	concurrency := fs.Int("concurrency", 0, "Sources fetched at once (0 = config value)")
	direct := fs.Bool("direct", false, "Fetch feeds without the proxy")
	source := fs.String("source", "", "Only fetch the named source")
	list := fs.Int("list", 10, "Print the newest N articles after the pass")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	if *noScrape {
		cfg.ScrapeArticles = false
	}
	if *noAnalyze {
		cfg.Analysis.Enabled = false
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if *direct {
		cfg.ProxyURL = ""
	}
	if *source != "" {
		var picked []feed.Source
		for _, s := range cfg.Sources {
			if s.Name == *source {
				picked = append(picked, s)
			}
		}
		if len(picked) == 0 {
			fmt.Fprintf(os.Stderr, "error: no configured source named %q\n", *source)
			return 1
		}
		cfg.Sources = picked
	}

	p, closeAll := openPipeline(cfg)
	defer closeAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Fetching %d sources (concurrency %d, scrape %v)\n\n",
		len(cfg.Sources), cfg.Concurrency, cfg.ScrapeArticles)
	return fetchPass(ctx, p, cfg.Sources, *list, os.Stdout, os.Stderr)
}

// fetchPass runs one ingestion pass, persists it and classifies pending
// articles. It returns the process exit code.
func fetchPass(ctx context.Context, p *app.Pipeline, sources []feed.Source, list int, stdout, stderr io.Writer) int {
	start := time.Now()
	coordinator := p.Coordinator()
	run := p.Orchestrator.Stream(ctx, sources)
	newTotal := 0
	for r := range run.Events {
		newTotal += coordinator.Persist(r)
		if r.Err != nil {
			fmt.Fprintf(stdout, "  ✗ %-30s %s\n", r.Source.Name, truncate(r.ErrorMessage(), 100))
			continue
		}
		fmt.Fprintf(stdout, "  ✓ %-30s %d articles\n", r.Source.Name, len(r.Articles))
	}
	articles, err := run.Wait()
	if err != nil {
		fmt.Fprintf(stderr, "\ningestion stopped: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "\n%d unique articles, %d new, in %s\n", len(articles), newTotal, time.Since(start).Round(time.Millisecond))

	if p.Classifier != nil {
		analyzed := coordinator.Analyze(ctx)
		fmt.Fprintf(stdout, "Classified %d articles\n", analyzed)
	}

	if list > 0 && len(articles) > 0 {
		fmt.Fprintln(stdout)
		n := min(list, len(articles))
		for _, a := range articles[:n] {
			date := a.PubDate
			if date == "" {
				date = "-"
			}
			fmt.Fprintf(stdout, "  %-10s  %-18s  %s\n", date, truncate(a.Source, 18), truncate(a.Title, 80))
		}
	}
	return 0
}
