package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/infblueocean/newsmap/internal/feed"
)

func f64(v float64) *float64 { return &v }

var rawArticle = feed.RawArticle{
	ID:          "https://example.com/a",
	Title:       "Floods in Valencia",
	Link:        "https://example.com/a",
	PubDate:     "30/10/2024",
	Description: "Feed description",
	Source:      "El País (ES)",
	ImageURL:    "https://example.com/feed.jpg",
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		in        Result
		category  string
		importance float64
		location  string
		wantPoint bool
	}{
		{
			name:     "valid result kept",
			in:       Result{Category: "environnement", Importance: 0.8, Location: "Valencia, Spain", Latitude: f64(39.47), Longitude: f64(-0.37)},
			category: "environnement", importance: 0.8, location: "Valencia, Spain", wantPoint: true,
		},
		{
			name:     "category normalized to lowercase",
			in:       Result{Category: " Tech ", Importance: 0.5, Location: "Berlin"},
			category: "tech", importance: 0.5, location: "Berlin",
		},
		{
			name:     "unknown category defaults to flash",
			in:       Result{Category: "sports", Importance: 0.5},
			category: "flash", importance: 0.5, location: NoLocation,
		},
		{
			name:     "importance clamped high",
			in:       Result{Category: "urgent", Importance: 7},
			category: "urgent", importance: 1, location: NoLocation,
		},
		{
			name:     "importance clamped low",
			in:       Result{Category: "urgent", Importance: -0.2},
			category: "urgent", importance: 0, location: NoLocation,
		},
		{
			name:     "N/A clears coordinates",
			in:       Result{Category: "tech", Importance: 0.3, Location: "n/a", Latitude: f64(1), Longitude: f64(2)},
			category: "tech", importance: 0.3, location: NoLocation,
		},
		{
			name:     "out of range latitude clears both",
			in:       Result{Category: "tech", Location: "Nowhere", Latitude: f64(120), Longitude: f64(2)},
			category: "tech", location: "Nowhere",
		},
		{
			name:     "half a point clears both",
			in:       Result{Category: "tech", Location: "Paris", Latitude: f64(48.8)},
			category: "tech", location: "Paris",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in, rawArticle)
			if got.Category != tt.category {
				t.Errorf("Category = %q, want %q", got.Category, tt.category)
			}
			if got.Importance != tt.importance {
				t.Errorf("Importance = %v, want %v", got.Importance, tt.importance)
			}
			if got.Location != tt.location {
				t.Errorf("Location = %q, want %q", got.Location, tt.location)
			}
			if got.HasPoint() != tt.wantPoint {
				t.Errorf("HasPoint = %v, want %v", got.HasPoint(), tt.wantPoint)
			}
			if !got.HasPoint() && (got.Latitude != nil || got.Longitude != nil) {
				t.Errorf("expected both coordinates nil, got %v %v", got.Latitude, got.Longitude)
			}
		})
	}
}

func TestNormalizeFillsTextFromArticle(t *testing.T) {
	got := Normalize(Result{Category: "flash"}, rawArticle)
	if got.Title != rawArticle.Title || got.Link != rawArticle.Link || got.Date != rawArticle.PubDate || got.Description != rawArticle.Description {
		t.Errorf("text fields not filled: %+v", got)
	}
}

func TestMergeImagePreference(t *testing.T) {
	r := Result{Category: "tech", ImageURL: "https://ai.example/img.jpg", Description: "Refined"}

	got := Merge(rawArticle, r)
	if got.Image != "https://ai.example/img.jpg" {
		t.Errorf("expected classifier image over feed image, got %q", got.Image)
	}
	if got.Summary != "Refined" {
		t.Errorf("Summary = %q", got.Summary)
	}

	scraped := rawArticle
	scraped.ScrapedImageURL = "https://example.com/scraped.jpg"
	if got := Merge(scraped, r); got.Image != scraped.ScrapedImageURL {
		t.Errorf("expected scraped image, got %q", got.Image)
	}

	if got := Merge(rawArticle, Result{}); got.Image != rawArticle.ImageURL || got.Summary != rawArticle.Description {
		t.Errorf("expected feed fallbacks, got %+v", got)
	}
}

func TestFallback(t *testing.T) {
	r := Fallback(rawArticle, strings.Repeat("x", 150))
	if r.Category != DefaultCategory || r.Importance != 0 || r.HasPoint() {
		t.Errorf("unexpected fallback %+v", r)
	}
	if len(r.Location) != 100 {
		t.Errorf("expected reason truncated to 100, got %d", len(r.Location))
	}

	undated := rawArticle
	undated.PubDate = ""
	if Fallback(undated, "err").Date == "" {
		t.Error("expected fallback date to be filled")
	}
}

// fakeClassifier returns canned results keyed by article ID.
type fakeClassifier struct {
	results map[string]Result
	errs    map[string]error
	calls   []string
}

func (f *fakeClassifier) Classify(ctx context.Context, a feed.RawArticle) (Result, error) {
	f.calls = append(f.calls, a.ID)
	if err := f.errs[a.ID]; err != nil {
		return Result{}, err
	}
	return f.results[a.ID], nil
}

func articles(n int) []feed.RawArticle {
	out := make([]feed.RawArticle, n)
	for i := range out {
		out[i] = feed.RawArticle{ID: string(rune('a' + i)), Title: "T" + string(rune('a'+i))}
	}
	return out
}

func TestAnalyzeAppliesLimitAndFallback(t *testing.T) {
	fc := &fakeClassifier{
		results: map[string]Result{"a": {Category: "culture", Importance: 0.4, Location: "Rome", Latitude: f64(41.9), Longitude: f64(12.5)}},
		errs:    map[string]error{"b": errors.New("quota exceeded")},
	}

	got, err := Analyze(context.Background(), fc, articles(15), 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got) != DefaultLimit || len(fc.calls) != DefaultLimit {
		t.Fatalf("expected %d analyzed, got %d (calls %d)", DefaultLimit, len(got), len(fc.calls))
	}
	if got[0].Category != "culture" || got[0].Location != "Rome" || got[0].Latitude == nil {
		t.Errorf("first article not classified: %+v", got[0])
	}
	if got[1].Category != DefaultCategory || got[1].Location != "quota exceeded" || got[1].Importance != 0 {
		t.Errorf("expected fallback for failed classification, got %+v", got[1])
	}
	if !got[1].Failed {
		t.Error("fallback record should be marked failed")
	}
	if got[0].Failed || got[2].Failed {
		t.Error("classified records should not be marked failed")
	}
	if got[2].Category != DefaultCategory || got[2].Location != NoLocation {
		t.Errorf("expected normalized empty result, got %+v", got[2])
	}
}

func TestAnalyzeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc := &fakeClassifier{}
	got, err := Analyze(ctx, fc, articles(3), 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(got) != 0 || len(fc.calls) != 0 {
		t.Errorf("expected no work after cancel, got %d results", len(got))
	}
}
