package main

import (
	"log"

	"github.com/infblueocean/newsmap/internal/app"
	"github.com/infblueocean/newsmap/internal/config"
)

// loadConfig loads the config or fatals.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// openPipeline builds the pipeline with the configured event log or fatals.
// The returned func closes the store and flushes the log.
func openPipeline(cfg *config.Config) (*app.Pipeline, func()) {
	logger, closeLog, err := app.OpenLogger(cfg, nil)
	if err != nil {
		log.Fatalf("failed to open event log: %v", err)
	}
	p, err := app.New(cfg, logger)
	if err != nil {
		closeLog()
		log.Fatalf("failed to open database: %v", err)
	}
	return p, func() {
		p.Close()
		closeLog()
	}
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
