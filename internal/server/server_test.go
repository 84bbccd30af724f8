package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/infblueocean/newsmap/internal/analysis"
	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/ingest"
	"github.com/infblueocean/newsmap/internal/store"
	"github.com/infblueocean/newsmap/internal/ui"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, st *store.Store) {
	t.Helper()
	articles := []feed.RawArticle{
		{ID: "a", Title: "Paris news", Link: "http://example.com/a", PubDate: "02/01/2024", Source: "Le Monde"},
		{ID: "b", Title: "Berlin news", Link: "http://example.com/b", PubDate: "01/01/2024", Source: "Spiegel"},
	}
	if _, err := st.SaveArticles(articles); err != nil {
		t.Fatal(err)
	}
	lat, lon := 48.85, 2.35
	if err := st.SaveAnalysis(analysis.AnalyzedArticle{
		RawArticle: articles[0], Category: "culture", Importance: 0.7,
		Location: "Paris, France", Latitude: &lat, Longitude: &lon,
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveAnalysis(analysis.AnalyzedArticle{
		RawArticle: articles[1], Category: "flash", Location: analysis.NoLocation,
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateSourceStatus(feed.Source{Name: "Le Monde", URL: "http://lemonde/rss"}, 1, ""); err != nil {
		t.Fatal(err)
	}
}

func get(t *testing.T, srv *httptest.Server, path string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func TestArticlesEndpoint(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	srv := httptest.NewServer(New(st, nil, nil).Handler())
	defer srv.Close()

	var articles []feed.RawArticle
	resp := get(t, srv, "/api/articles", &articles)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if len(articles) != 2 || articles[0].ID != "a" {
		t.Errorf("articles = %+v", articles)
	}

	get(t, srv, "/api/articles?limit=1", &articles)
	if len(articles) != 1 {
		t.Errorf("limit=1 returned %d articles", len(articles))
	}
}

func TestArticlesEndpointEmpty(t *testing.T) {
	srv := httptest.NewServer(New(openStore(t), nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/articles")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw json.RawMessage
	json.NewDecoder(resp.Body).Decode(&raw)
	if string(raw) != "[]" {
		t.Errorf("empty store body = %s, want []", raw)
	}
}

func TestInvalidLimit(t *testing.T) {
	srv := httptest.NewServer(New(openStore(t), nil, nil).Handler())
	defer srv.Close()

	for _, q := range []string{"0", "-3", "many"} {
		var body map[string]string
		resp := get(t, srv, "/api/articles?limit="+q, &body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", q, resp.StatusCode)
		}
		if body["error"] == "" {
			t.Errorf("limit=%s: missing error message", q)
		}
	}
}

func TestAnalyzedAndGeoJSON(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	srv := httptest.NewServer(New(st, nil, nil).Handler())
	defer srv.Close()

	var analyzed []analysis.AnalyzedArticle
	get(t, srv, "/api/analyzed", &analyzed)
	if len(analyzed) != 2 || analyzed[0].ID != "a" {
		t.Errorf("analyzed = %+v", analyzed)
	}

	var fc analysis.FeatureCollection
	resp := get(t, srv, "/api/geojson", &fc)
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("geojson = %+v", fc)
	}
	if c := fc.Features[0].Geometry.Coordinates; c[0] != 2.35 || c[1] != 48.85 {
		t.Errorf("coordinates = %v, want [lon lat]", c)
	}
}

func TestSourcesEndpoint(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	srv := httptest.NewServer(New(st, nil, nil).Handler())
	defer srv.Close()

	var statuses []store.SourceStatus
	get(t, srv, "/api/sources", &statuses)
	if len(statuses) != 1 || statuses[0].Name != "Le Monde" || statuses[0].ArticleCount != 1 {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(New(openStore(t), func() { calls.Add(1) }, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || calls.Load() != 1 {
		t.Errorf("status = %d, calls = %d", resp.StatusCode, calls.Load())
	}

	// GET is not routed.
	resp = get(t, srv, "/api/refresh", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}

func TestRefreshUnavailable(t *testing.T) {
	srv := httptest.NewServer(New(openStore(t), nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHealthcheck(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	srv := httptest.NewServer(New(st, nil, nil).Handler())
	defer srv.Close()

	var body map[string]any
	get(t, srv, "/healthcheck", &body)
	if body["status"] != "ok" || body["articles"] != float64(2) {
		t.Errorf("health = %v", body)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return m
}

func TestHubBroadcastsRefreshProgress(t *testing.T) {
	s := New(openStore(t), nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if m := readFrame(t, conn); m["type"] != TypeHello {
		t.Fatalf("first frame = %v, want hello", m)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Len() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Hub().Len() != 1 {
		t.Fatal("client was not registered")
	}

	src := feed.Source{Name: "BBC", URL: "http://bbc/rss"}
	hub := s.Hub()
	hub.Send(ui.RefreshStarted{Sources: []feed.Source{src}})
	hub.Send(ui.SourceProcessed{Result: ingest.SourceResult{Source: src, Err: errors.New("boom")}})
	hub.Send(ui.ArticlesLoaded{}) // not forwarded
	hub.Send(ui.RefreshComplete{Articles: 3, New: 2, Analyzed: 1})

	want := []string{TypeRefreshStart, TypeSource, TypeRefreshComplete}
	var frames []map[string]any
	for range want {
		frames = append(frames, readFrame(t, conn))
	}
	for i, m := range frames {
		if m["type"] != want[i] {
			t.Errorf("frame %d type = %v, want %s", i, m["type"], want[i])
		}
	}

	srcData, _ := frames[1]["data"].(map[string]any)
	if srcData["name"] != "BBC" || srcData["error"] != "boom" {
		t.Errorf("source frame data = %v", srcData)
	}
	done, _ := frames[2]["data"].(map[string]any)
	if done["new"] != float64(2) || done["analyzed"] != float64(1) {
		t.Errorf("complete frame data = %v", done)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	s := New(openStore(t), nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	readFrame(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Len() > 0 && time.Now().Before(deadline) {
		s.Hub().Send(ui.RefreshComplete{})
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.Hub().Len(); n != 0 {
		t.Errorf("hub still has %d clients", n)
	}
}

func TestHubDropsClientWithFullQueue(t *testing.T) {
	h := NewHub(nil)
	stalled := &client{send: make(chan []byte, 1)}
	stalled.send <- []byte("queued")
	h.clients[stalled] = struct{}{}

	done := make(chan struct{})
	go func() {
		h.Send(ui.RefreshComplete{Articles: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a stalled client")
	}

	if n := h.Len(); n != 0 {
		t.Errorf("expected stalled client dropped, hub has %d", n)
	}
	if got := string(<-stalled.send); got != "queued" {
		t.Errorf("unexpected queued frame %q", got)
	}
	if _, ok := <-stalled.send; ok {
		t.Error("expected the client's queue to be closed")
	}
}
