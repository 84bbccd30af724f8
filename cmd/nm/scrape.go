package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/infblueocean/newsmap/internal/scrape"
)

func runScrape() int {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	timeout := fs.Duration("timeout", scrape.DefaultTimeout, "Request timeout")
	full := fs.Bool("full", false, "Print the whole extracted text")
	fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: nm scrape [-timeout 10s] [-full] <url>")
		return 2
	}
	pageURL := fs.Arg(0)

	s := scrape.NewScraper(scrape.Options{Timeout: *timeout}, nil)

	start := time.Now()
	data := s.Scrape(context.Background(), pageURL)
	elapsed := time.Since(start).Round(time.Millisecond)

	if data.Err != nil {
		fmt.Fprintf(os.Stderr, "error: %v (%s)\n", data.Err, elapsed)
		return 1
	}

	image := data.MainImageURL
	if image == "" {
		image = "(none)"
	}
	fmt.Printf("URL:    %s\n", pageURL)
	fmt.Printf("Time:   %s\n", elapsed)
	fmt.Printf("Image:  %s\n", image)
	fmt.Printf("Text:   %d chars\n\n", len([]rune(data.TextContent)))

	text := data.TextContent
	if !*full {
		text = truncate(text, 600)
	}
	fmt.Println(text)
	return 0
}
