package scrape

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/infblueocean/newsmap/internal/feed"
)

// metaImageSelectors are tried in order; each entry is one tier.
var metaImageSelectors = [][]string{
	{`meta[property="og:image"]`, `meta[name="og:image"]`, `meta[property="og:image:url"]`},
	{`meta[name="twitter:image"]`, `meta[property="twitter:image"]`, `meta[name="twitter:image:src"]`},
}

// inlineImageScopes bound the last-resort <img> search to likely article
// containers so site logos and avatars are not picked up.
var inlineImageScopes = []string{"article", `main[role="main"]`, "main"}

// ResolveImage returns the page's representative image as an absolute URL,
// or "" when nothing usable is found.
//
// Tiers, first resolvable candidate wins:
//  1. Open Graph og:image
//  2. Twitter Card twitter:image
//  3. Schema.org JSON-LD "image" (string, {url}, array, or inside @graph)
//  4. first <img> inside the article container
//
// A candidate that does not resolve against baseURL is skipped, never fatal.
func ResolveImage(doc *goquery.Document, baseURL string) string {
	if doc == nil {
		return ""
	}
	for _, tier := range metaImageSelectors {
		for _, sel := range tier {
			content, ok := doc.Find(sel).First().Attr("content")
			if !ok {
				continue
			}
			if u, ok := feed.ResolveURL(content, baseURL); ok {
				return u
			}
		}
	}
	if u := jsonLDImage(doc, baseURL); u != "" {
		return u
	}
	return inlineImage(doc, baseURL)
}

// jsonLDImage scans ld+json blocks in document order.
func jsonLDImage(doc *goquery.Document, baseURL string) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return true
		}
		found = imageFromLD(v, baseURL, true)
		return found == ""
	})
	return found
}

// imageFromLD looks for an "image" field on a JSON-LD node. Top-level
// arrays and @graph members are searched one level deep.
func imageFromLD(v any, baseURL string, top bool) string {
	switch node := v.(type) {
	case map[string]any:
		if img, ok := node["image"]; ok {
			if u := imageValue(img, baseURL); u != "" {
				return u
			}
		}
		if graph, ok := node["@graph"].([]any); ok && top {
			for _, item := range graph {
				if u := imageFromLD(item, baseURL, false); u != "" {
					return u
				}
			}
		}
	case []any:
		if !top {
			return ""
		}
		for _, item := range node {
			if u := imageFromLD(item, baseURL, false); u != "" {
				return u
			}
		}
	}
	return ""
}

// imageValue accepts the shapes schema.org allows for "image".
func imageValue(v any, baseURL string) string {
	switch img := v.(type) {
	case string:
		if u, ok := feed.ResolveURL(img, baseURL); ok {
			return u
		}
	case map[string]any:
		for _, key := range []string{"url", "contentUrl"} {
			if s, ok := img[key].(string); ok {
				if u, ok := feed.ResolveURL(s, baseURL); ok {
					return u
				}
			}
		}
	case []any:
		for _, item := range img {
			if u := imageValue(item, baseURL); u != "" {
				return u
			}
		}
	}
	return ""
}

func inlineImage(doc *goquery.Document, baseURL string) string {
	for _, scope := range inlineImageScopes {
		var found string
		doc.Find(scope + " img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if w, _ := s.Attr("width"); w == "1" {
				return true
			}
			for _, attr := range []string{"src", "data-src"} {
				src, ok := s.Attr(attr)
				if !ok || strings.HasPrefix(strings.TrimSpace(src), "data:") {
					continue
				}
				if u, ok := feed.ResolveURL(src, baseURL); ok {
					found = u
					return false
				}
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}
