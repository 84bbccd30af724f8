package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/infblueocean/newsmap/internal/ingest"
)

func runStats() int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	sample := fs.Int("sample", 5000, "Articles sampled for the date breakdown")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	p, closeAll := openPipeline(cfg)
	defer closeAll()
	st := p.Store

	total, _ := st.ArticleCount()
	analyzed, _ := st.AnalysisCount()
	fmt.Printf("Articles in DB:        %d\n", total)
	fmt.Printf("Analyzed:              %d\n", analyzed)
	if total > 0 {
		fmt.Printf("Analysis coverage:     %.1f%%\n", float64(analyzed)/float64(total)*100)
	}

	statuses, err := st.SourceStatuses()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Printf("\nSources (%d):\n", len(statuses))
	for _, s := range statuses {
		last := "never"
		if !s.LastFetched.IsZero() {
			last = s.LastFetched.Local().Format("2006-01-02 15:04")
		}
		line := fmt.Sprintf("  %-30s %4d  last %s", s.Name, s.ArticleCount, last)
		if s.ErrorCount > 0 {
			line += fmt.Sprintf("  errors %d", s.ErrorCount)
		}
		fmt.Println(line)
		if s.LastError != "" {
			fmt.Printf("    %s\n", truncate(s.LastError, 120))
		}
	}

	articles, _ := st.GetArticles(*sample)
	if len(articles) == 0 {
		return 0
	}

	now := time.Now()
	// PubDate has day precision; buckets count whole days.
	buckets := []time.Duration{24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour}
	labels := []string{"<1d", "<7d", "<30d"}

	fmt.Printf("\nBy publication date (sample %d):\n", len(articles))
	undated, scraped := 0, 0
	for _, a := range articles {
		if ingest.ParseDate(a.PubDate).IsZero() {
			undated++
		}
		if a.FullText != "" {
			scraped++
		}
	}
	for i, d := range buckets {
		count := 0
		for _, a := range articles {
			t := ingest.ParseDate(a.PubDate)
			if !t.IsZero() && now.Sub(t) < d {
				count++
			}
		}
		fmt.Printf("  %-8s %d\n", labels[i], count)
	}
	fmt.Printf("  %-8s %d\n", "undated", undated)
	fmt.Printf("\nScraped full text:     %d / %d\n", scraped, len(articles))
	return 0
}
