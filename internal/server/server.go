// Package server exposes stored articles, analyses and the GeoJSON map
// layer over HTTP, and pushes refresh progress to websocket clients.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/infblueocean/newsmap/internal/analysis"
	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/otel"
	"github.com/infblueocean/newsmap/internal/store"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Server routes API requests to the store.
type Server struct {
	store   *store.Store
	refresh func()
	hub     *Hub
	logger  *otel.Logger
	router  *mux.Router
	started time.Time
}

// New creates a Server. refresh is called by POST /api/refresh and may be
// nil, in which case that route answers 503.
func New(st *store.Store, refresh func(), l *otel.Logger) *Server {
	s := &Server{
		store:   st,
		refresh: refresh,
		hub:     NewHub(l),
		logger:  l,
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/articles", s.handleArticles).Methods(http.MethodGet)
	api.HandleFunc("/analyzed", s.handleAnalyzed).Methods(http.MethodGet)
	api.HandleFunc("/geojson", s.handleGeoJSON).Methods(http.MethodGet)
	api.HandleFunc("/sources", s.handleSources).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/ws", s.hub.ServeHTTP)
	s.router.HandleFunc("/healthcheck", s.handleHealth).Methods(http.MethodGet)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub. It satisfies coord.Sender.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	articles, err := s.store.GetArticles(limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if articles == nil {
		articles = []feed.RawArticle{}
	}
	respondWithJSON(w, http.StatusOK, articles)
}

func (s *Server) handleAnalyzed(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	analyzed, err := s.store.GetAnalyzed(limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if analyzed == nil {
		analyzed = []analysis.AnalyzedArticle{}
	}
	respondWithJSON(w, http.StatusOK, analyzed)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	analyzed, err := s.store.GetAnalyzed(limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	writeJSON(w, http.StatusOK, analysis.ToGeoJSON(analyzed))
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.store.SourceStatuses()
	if err != nil {
		s.storeError(w, err)
		return
	}
	if statuses == nil {
		statuses = []store.SourceStatus{}
	}
	respondWithJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		respondWithError(w, http.StatusServiceUnavailable, "refresh is not available")
		return
	}
	s.refresh()
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	count, err := s.store.ArticleCount()
	if err != nil {
		status = "degraded"
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"articles": count,
		"clients":  s.hub.Len(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	s.logger.Error(otel.KindStoreError, "server", err)
	respondWithError(w, http.StatusInternalServerError, "store unavailable")
}

// parseLimit reads ?limit=, writing a 400 when it is not a positive integer.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, MaxLimit), true
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, code, payload)
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.WriteHeader(code)
	w.Write(response)
}
