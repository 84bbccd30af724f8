package coord

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/infblueocean/newsmap/internal/analysis"
	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/ingest"
	"github.com/infblueocean/newsmap/internal/store"
	"github.com/infblueocean/newsmap/internal/ui"
)

// mockIngester reports a fixed result per source.
type mockIngester struct {
	mu        sync.Mutex
	perSource map[string][]feed.RawArticle
	failing   map[string]error
	runs      atomic.Int32
	delay     time.Duration
	lastSrcs  []feed.Source
}

func (m *mockIngester) Ingest(ctx context.Context, sources []feed.Source, cb func(ingest.SourceResult)) ([]feed.RawArticle, error) {
	m.runs.Add(1)
	m.mu.Lock()
	m.lastSrcs = sources
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	var all []feed.RawArticle
	for i, src := range sources {
		r := ingest.SourceResult{Index: i, Source: src, Articles: m.perSource[src.URL], Err: m.failing[src.URL]}
		if r.Err != nil {
			r.Articles = nil
		}
		all = append(all, r.Articles...)
		cb(r)
	}
	return all, nil
}

// recorder collects messages sent to the UI.
type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) messages() []tea.Msg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tea.Msg(nil), r.msgs...)
}

// staticClassifier puts every article in Paris.
type staticClassifier struct{ calls atomic.Int32 }

func (s *staticClassifier) Classify(ctx context.Context, a feed.RawArticle) (analysis.Result, error) {
	s.calls.Add(1)
	lat, lon := 48.85, 2.35
	return analysis.Result{Category: "culture", Importance: 0.5, Location: "Paris", Latitude: &lat, Longitude: &lon}, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testSources = []feed.Source{
	{Name: "Source1", URL: "http://example.com/1"},
	{Name: "Source2", URL: "http://example.com/2"},
	{Name: "Source3", URL: "http://example.com/3"},
}

func newMock() *mockIngester {
	return &mockIngester{
		perSource: map[string][]feed.RawArticle{
			"http://example.com/1": {{ID: "a", Title: "A", Source: "Source1", PubDate: "01/01/2024"}},
			"http://example.com/3": {{ID: "c", Title: "C", Source: "Source3", PubDate: "02/01/2024"}},
		},
		failing: map[string]error{"http://example.com/2": errors.New("empty response from Source2. URL: http://example.com/2")},
	}
}

func TestRunOnceSavesArticlesAndStatus(t *testing.T) {
	s := openStore(t)
	rec := &recorder{}
	c := New(s, newMock(), nil, testSources, Options{}, nil)

	done := c.RunOnce(context.Background(), rec)
	if done.Err != nil || done.Articles != 2 || done.New != 2 {
		t.Errorf("unexpected completion %+v", done)
	}

	n, err := s.ArticleCount()
	if err != nil || n != 2 {
		t.Errorf("expected 2 stored articles, got %d (%v)", n, err)
	}

	statuses, err := s.SourceStatuses()
	if err != nil {
		t.Fatalf("SourceStatuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 source statuses, got %d", len(statuses))
	}
	for _, st := range statuses {
		if st.Name == "Source2" && st.LastError == "" {
			t.Error("expected Source2 error to be recorded")
		}
		if st.Name == "Source1" && st.ArticleCount != 1 {
			t.Errorf("Source1 count = %d", st.ArticleCount)
		}
	}

	// Second pass finds nothing new.
	if again := c.RunOnce(context.Background(), nil); again.New != 0 {
		t.Errorf("expected no new articles on second pass, got %d", again.New)
	}
}

func TestRunOnceSendsMessagesInOrder(t *testing.T) {
	rec := &recorder{}
	c := New(openStore(t), newMock(), nil, testSources, Options{}, nil)
	c.RunOnce(context.Background(), rec)

	msgs := rec.messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if _, ok := msgs[0].(ui.RefreshStarted); !ok {
		t.Errorf("first message = %T, want RefreshStarted", msgs[0])
	}
	for i, name := range []string{"Source1", "Source2", "Source3"} {
		sp, ok := msgs[i+1].(ui.SourceProcessed)
		if !ok || sp.Result.Source.Name != name {
			t.Errorf("message %d = %#v, want SourceProcessed for %s", i+1, msgs[i+1], name)
		}
	}
	if sp := msgs[2].(ui.SourceProcessed); sp.Result.ErrorMessage() == "" {
		t.Error("expected error message for Source2")
	}
	if _, ok := msgs[4].(ui.RefreshComplete); !ok {
		t.Errorf("last message = %T, want RefreshComplete", msgs[4])
	}
}

func TestRunOnceAnalyzesNewArticles(t *testing.T) {
	s := openStore(t)
	cls := &staticClassifier{}
	c := New(s, newMock(), cls, testSources, Options{AnalyzeLimit: 1}, nil)

	done := c.RunOnce(context.Background(), nil)
	if done.Analyzed != 1 {
		t.Errorf("expected 1 analyzed (limit), got %d", done.Analyzed)
	}

	done = c.RunOnce(context.Background(), nil)
	if done.Analyzed != 1 {
		t.Errorf("expected the remaining article analyzed, got %d", done.Analyzed)
	}
	if got := cls.calls.Load(); got != 2 {
		t.Errorf("expected 2 classifications, got %d", got)
	}

	analyzed, err := s.GetAnalyzed(10)
	if err != nil || len(analyzed) != 2 {
		t.Fatalf("expected 2 analyzed articles, got %d (%v)", len(analyzed), err)
	}
	if analyzed[0].Location != "Paris" || analyzed[0].Latitude == nil {
		t.Errorf("analysis not stored: %+v", analyzed[0])
	}
}

// flakyClassifier fails its first failures calls, then classifies
// everything in Lyon.
type flakyClassifier struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyClassifier) Classify(ctx context.Context, a feed.RawArticle) (analysis.Result, error) {
	if f.calls.Add(1) <= f.failures {
		return analysis.Result{}, errors.New("API error (status 429): rate limit reached")
	}
	lat, lon := 45.76, 4.84
	return analysis.Result{Category: "tech", Importance: 0.7, Location: "Lyon", Latitude: &lat, Longitude: &lon}, nil
}

func TestRunOnceRetriesFailedClassification(t *testing.T) {
	s := openStore(t)
	cls := &flakyClassifier{failures: 2}
	c := New(s, newMock(), cls, testSources, Options{}, nil)

	done := c.RunOnce(context.Background(), nil)
	if done.Analyzed != 0 {
		t.Errorf("expected nothing saved while the classifier fails, got %d", done.Analyzed)
	}
	analyzed, err := s.GetAnalyzed(10)
	if err != nil {
		t.Fatalf("GetAnalyzed: %v", err)
	}
	if len(analyzed) != 0 {
		t.Fatalf("failed classifications were stored: %+v", analyzed)
	}

	done = c.RunOnce(context.Background(), nil)
	if done.Analyzed != 2 {
		t.Errorf("expected both articles analyzed on retry, got %d", done.Analyzed)
	}
	if got := cls.calls.Load(); got != 4 {
		t.Errorf("expected 4 classifications, got %d", got)
	}

	analyzed, err = s.GetAnalyzed(10)
	if err != nil || len(analyzed) != 2 {
		t.Fatalf("expected 2 analyzed articles, got %d (%v)", len(analyzed), err)
	}
	for _, a := range analyzed {
		if a.Location != "Lyon" || a.Importance != 0.7 {
			t.Errorf("stale fallback stored for %s: %+v", a.ID, a)
		}
	}
}

func TestCoordinatorStartAndWait(t *testing.T) {
	mock := newMock()
	c := New(openStore(t), mock, nil, testSources, Options{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, nil)

	deadline := time.Now().Add(2 * time.Second)
	for mock.runs.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mock.runs.Load() < 1 {
		t.Fatal("expected initial pass")
	}

	cancel()

	waitDone := make(chan struct{})
	go func() {
		c.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestCoordinatorRefreshTriggersPass(t *testing.T) {
	mock := newMock()
	c := New(openStore(t), mock, nil, testSources, Options{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Wait()
	}()
	c.Start(ctx, nil)

	c.Refresh()
	c.Refresh() // merged with the pending request

	deadline := time.Now().Add(2 * time.Second)
	for mock.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := mock.runs.Load(); got < 2 {
		t.Errorf("expected refresh to trigger a second pass, got %d passes", got)
	}
}

func TestCoordinatorRespectsContextCancellation(t *testing.T) {
	mock := newMock()
	mock.delay = time.Minute
	rec := &recorder{}
	c := New(openStore(t), mock, nil, testSources, Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := c.RunOnce(ctx, rec)
	if !errors.Is(done.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", done.Err)
	}
	if done.Analyzed != 0 {
		t.Error("analysis must not run after cancellation")
	}
}

func TestCoordinatorSourcesImmutable(t *testing.T) {
	sources := []feed.Source{{Name: "Original", URL: "http://example.com/1"}}
	mock := newMock()
	c := New(openStore(t), mock, nil, sources, Options{}, nil)

	sources[0].Name = "Modified"
	c.RunOnce(context.Background(), nil)

	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.lastSrcs[0].Name != "Original" {
		t.Errorf("coordinator sources were modified: %q", mock.lastSrcs[0].Name)
	}
}

func TestCoordinatorNext(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 7, 0, 0, time.UTC)

	tests := []struct {
		name string
		opts Options
		want time.Duration
	}{
		{"default interval", Options{}, DefaultInterval},
		{"interval", Options{Interval: 5 * time.Minute}, 5 * time.Minute},
		{"cron", Options{Interval: time.Hour, Schedule: "*/10 * * * *"}, 3 * time.Minute},
		{"descriptor", Options{Schedule: "@hourly"}, 53 * time.Minute},
		{"invalid falls back", Options{Interval: 2 * time.Minute, Schedule: "not a schedule"}, 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(openStore(t), newMock(), nil, testSources, tt.opts, nil)
			if got := c.next(now); got != tt.want {
				t.Errorf("next() = %v, want %v", got, tt.want)
			}
		})
	}
}
