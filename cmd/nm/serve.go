package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/infblueocean/newsmap/internal/server"
)

func runServe() int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "Listen address (default: config listen_addr)")
	noRefresh := fs.Bool("no-refresh", false, "Serve stored data only; do not ingest")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	p, closeAll := openPipeline(cfg)
	defer closeAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *server.Server
	if *noRefresh {
		srv = server.New(p.Store, nil, p.Logger)
	} else {
		coordinator := p.Coordinator()
		srv = server.New(p.Store, coordinator.Refresh, p.Logger)
		coordinator.Start(ctx, srv.Hub())
		defer coordinator.Wait()
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Serving on http://%s (refresh %v)\n", cfg.ListenAddr, !*noRefresh)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		return 1
	}
	return 0
}
