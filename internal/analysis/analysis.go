// Package analysis is the boundary to the article classifier: it defines
// the classification record, validates what a classifier returns, joins
// results onto raw articles, and exports map-ready GeoJSON.
package analysis

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/infblueocean/newsmap/internal/feed"
)

// DefaultLimit is how many articles one Analyze call classifies.
const DefaultLimit = 10

// NoLocation marks a result without a specific place.
const NoLocation = "N/A"

// Categories accepted from a classifier. Anything else becomes
// DefaultCategory.
var Categories = []string{"flash", "economie", "environnement", "tech", "culture", "urgent", "international"}

// DefaultCategory is used for unknown or missing categories.
const DefaultCategory = "flash"

// Result is one classification. JSON names match what the classifier is
// prompted to produce.
type Result struct {
	Title       string   `json:"titre"`
	Category    string   `json:"categorie"`
	Importance  float64  `json:"importance"`
	Link        string   `json:"lien"`
	Location    string   `json:"localisation"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// HasPoint reports whether both coordinates are present.
func (r Result) HasPoint() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Classifier turns one article into a Result.
type Classifier interface {
	Classify(ctx context.Context, a feed.RawArticle) (Result, error)
}

// AnalyzedArticle is a RawArticle joined with its classification.
type AnalyzedArticle struct {
	feed.RawArticle

	Category   string   `json:"category"`
	Importance float64  `json:"importance"`
	Location   string   `json:"location"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`

	// Summary is the classifier's description, or the feed's when the
	// classifier gave none.
	Summary string `json:"summary"`

	// Image is the display image: scraped, then classifier, then feed.
	Image string `json:"image,omitempty"`

	// Failed marks a Fallback record. It is shown but not persisted, so
	// the article is classified again on the next pass.
	Failed bool `json:"failed,omitempty"`
}

// Normalize validates r against the article it describes. Unknown
// categories fall back to DefaultCategory, importance is clamped to
// [0, 1], coordinates are kept only as an in-range pair for a specific
// location, and empty text fields are filled from a.
func Normalize(r Result, a feed.RawArticle) Result {
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if !validCategory(r.Category) {
		r.Category = DefaultCategory
	}

	switch {
	case math.IsNaN(r.Importance) || r.Importance < 0:
		r.Importance = 0
	case r.Importance > 1:
		r.Importance = 1
	}

	r.Location = strings.TrimSpace(r.Location)
	if r.Location == "" || strings.EqualFold(r.Location, NoLocation) {
		r.Location = NoLocation
		r.Latitude, r.Longitude = nil, nil
	}
	if !r.HasPoint() || !inRange(*r.Latitude, 90) || !inRange(*r.Longitude, 180) {
		r.Latitude, r.Longitude = nil, nil
	}

	if strings.TrimSpace(r.Title) == "" {
		r.Title = a.Title
	}
	if strings.TrimSpace(r.Link) == "" {
		r.Link = a.Link
	}
	if strings.TrimSpace(r.Date) == "" {
		r.Date = a.PubDate
	}
	if strings.TrimSpace(r.Description) == "" {
		r.Description = a.Description
	}
	r.ImageURL = strings.TrimSpace(r.ImageURL)
	return r
}

func validCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func inRange(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

// Fallback is the record used when classification fails: lowest
// importance, default category, and the failure reason in Location.
func Fallback(a feed.RawArticle, reason string) Result {
	date := a.PubDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	return Result{
		Title:       a.Title,
		Category:    DefaultCategory,
		Importance:  0,
		Link:        a.Link,
		Location:    truncate(reason, 100),
		Date:        date,
		Description: a.Description,
		ImageURL:    a.ImageURL,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Merge joins a raw article with its classification.
func Merge(a feed.RawArticle, r Result) AnalyzedArticle {
	summary := r.Description
	if summary == "" {
		summary = a.Description
	}

	image := a.ScrapedImageURL
	if image == "" {
		image = r.ImageURL
	}
	if image == "" {
		image = a.ImageURL
	}

	return AnalyzedArticle{
		RawArticle: a,
		Category:   r.Category,
		Importance: r.Importance,
		Location:   r.Location,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Summary:    summary,
		Image:      image,
	}
}

// Analyze classifies up to limit articles in order (DefaultLimit when
// limit <= 0). A failed classification yields the Fallback record, marked
// Failed, rather than stopping the batch. On cancellation it returns what it has along
// with ctx.Err().
func Analyze(ctx context.Context, c Classifier, articles []feed.RawArticle, limit int) ([]AnalyzedArticle, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(articles) > limit {
		articles = articles[:limit]
	}

	out := make([]AnalyzedArticle, 0, len(articles))
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := c.Classify(ctx, a)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			aa := Merge(a, Fallback(a, err.Error()))
			aa.Failed = true
			out = append(out, aa)
			continue
		}
		out = append(out, Merge(a, Normalize(r, a)))
	}
	return out, nil
}
