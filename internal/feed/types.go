// Package feed holds the canonical article record and the RSS/Atom parser
// that produces it from raw feed XML.
package feed

import (
	"net/url"
	"strings"
)

// Source is a configured feed: a human-readable name and the feed URL.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RawArticle is one feed entry, optionally enriched by scraping its page.
//
// The parser sets every field except FullText and ScrapedImageURL; the
// fetcher sets those two once, after scraping. Empty PubDate, FullText and
// ScrapedImageURL mean "absent".
type RawArticle struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Link            string `json:"link"`
	PubDate         string `json:"pubDate,omitempty"` // DD/MM/YYYY
	Description     string `json:"description,omitempty"`
	Source          string `json:"source"`
	ImageURL        string `json:"imageUrl,omitempty"`
	FullText        string `json:"fullText,omitempty"`
	ScrapedImageURL string `json:"scrapedImageUrl,omitempty"`
}

// BestImage returns the scraped image when present, else the feed image.
func (a RawArticle) BestImage() string {
	if a.ScrapedImageURL != "" {
		return a.ScrapedImageURL
	}
	return a.ImageURL
}

// IsAbsoluteHTTP reports whether raw is a well-formed absolute http(s) URL.
func IsAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ResolveURL resolves ref against base and returns the absolute http(s) URL.
// A candidate that cannot be parsed, or that does not end up absolute,
// reports false so callers can fall through to their next option.
func ResolveURL(ref, base string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if !r.IsAbs() {
		b, err := url.Parse(strings.TrimSpace(base))
		if err != nil || !b.IsAbs() {
			return "", false
		}
		r = b.ResolveReference(r)
	}
	if (r.Scheme != "http" && r.Scheme != "https") || r.Host == "" {
		return "", false
	}
	return r.String(), true
}
