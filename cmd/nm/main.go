// Command nm is the newsmap CLI for one-shot ingestion and inspection.
//
// Usage:
//
//	nm                      Show help
//	nm fetch                Run one ingestion pass and store the results
//	nm scrape <url>         Scrape a single article page
//	nm stats                Store and source statistics
//	nm geojson              Export analyzed articles as GeoJSON
//	nm serve                HTTP API with live refresh progress
//	nm events               JSONL event log viewer
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const usage = `nm - newsmap CLI

Usage:
  nm <command> [flags]

Commands:
  fetch       Run one ingestion pass (fetch, scrape, store, classify)
  scrape      Scrape a single article page and print its text and image
  stats       Article, analysis and per-source statistics
  geojson     Export analyzed articles as a GeoJSON FeatureCollection
  serve       HTTP/JSON API and websocket progress feed, refreshing on schedule
  events      JSONL event log viewer

Environment:
  OPENAI_API_KEY     Enables article classification
  OPENAI_MODEL       Classification model (default: gpt-3.5-turbo-0125)
  OPENAI_BASE_URL    OpenAI-compatible API root (default: https://api.openai.com/v1)
  NEWSMAP_PROXY_URL  Feed proxy prefix; empty fetches feeds directly
  NEWSMAP_DB         Database path (default: ~/.newsmap/newsmap.db)

Run 'nm <command> -h' for command-specific help.
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	// Commands return an exit code so their deferred cleanup runs first.
	code := 0
	switch cmd {
	case "fetch":
		code = runFetch()
	case "scrape":
		code = runScrape()
	case "stats":
		code = runStats()
	case "geojson":
		code = runGeoJSON()
	case "serve":
		code = runServe()
	case "events":
		code = runEvents()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "nm: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		code = 1
	}
	os.Exit(code)
}
