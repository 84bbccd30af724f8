// Command newsmap is the terminal dashboard: it ingests the configured
// feeds in the background and shows sources, articles and live events.
package main

import (
	"context"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/infblueocean/newsmap/internal/app"
	"github.com/infblueocean/newsmap/internal/config"
	"github.com/infblueocean/newsmap/internal/otel"
	"github.com/infblueocean/newsmap/internal/ui"
)

// articleLimit bounds the rows loaded into the table.
const articleLimit = 500

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	logger, closeLog, err := app.OpenLogger(cfg, ring)
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	defer closeLog()

	p, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer p.Close()

	logger.Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindStartup,
		Comp:  "main",
		Count: len(cfg.Sources),
		Extra: map[string]any{
			"scrape":   cfg.ScrapeArticles,
			"analysis": p.Classifier != nil,
			"proxy":    cfg.ProxyURL,
		},
	})

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	coordinator := p.Coordinator()

	loadArticles := func() tea.Cmd {
		return func() tea.Msg {
			articles, err := p.Store.GetArticles(articleLimit)
			if err != nil {
				return ui.ArticlesLoaded{Err: err}
			}
			statuses, err := p.Store.SourceStatuses()
			if err != nil {
				return ui.ArticlesLoaded{Err: err}
			}
			return ui.ArticlesLoaded{Articles: articles, Statuses: statuses}
		}
	}
	triggerRefresh := func() tea.Cmd {
		return func() tea.Msg {
			coordinator.Refresh()
			return nil
		}
	}

	program := tea.NewProgram(ui.NewApp(loadArticles, triggerRefresh, ring), tea.WithAltScreen())
	coordinator.Start(ctx, program)

	// Run UI (blocks until quit)
	if _, err := program.Run(); err != nil {
		log.Printf("Error running program: %v", err)
	}

	// Graceful shutdown
	cancel()
	coordinator.Wait()
	logger.Info(otel.KindShutdown, "main", "")
}
