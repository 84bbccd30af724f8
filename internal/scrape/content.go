package scrape

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// SufficientTextLength is the rune count a content container must exceed
// for its text to be accepted without trying further selectors.
const SufficientTextLength = 200

// RemoveSelectors match page furniture stripped before text extraction.
var RemoveSelectors = []string{
	"nav", "footer", "aside", "header",
	`[role="navigation"]`, `[role="complementary"]`, `[role="banner"]`, `[role="contentinfo"]`,
	`[class*="sidebar"]`, `[id*="sidebar"]`,
	`[class*="comments"]`, `[id*="comments"]`,
	`[class*="related-posts"]`, `[id*="related-posts"]`,
	`[class*="advertisement"]`, `[id*="advertisement"]`, `[class*="ads"]`, `[id*="ads"]`,
	"script", "style", "noscript", "iframe", "form", "button", "input", `[aria-hidden="true"]`,
}

// ContentSelectors are candidate main-content containers, most specific first.
var ContentSelectors = []string{
	`article[class*="content"]`, `article[class*="body"]`, `article[id*="content"]`, `article[id*="body"]`,
	`div[class*="article-content"]`, `div[class*="article-body"]`, `div[id*="article-content"]`, `div[id*="article-body"]`,
	`div[class*="post-content"]`, `div[class*="post-body"]`, `div[id*="post-content"]`, `div[id*="post-body"]`,
	`main[role="main"]`, "article", "main",
	`div[class*="content"]`, `div[id*="content"]`, `div[class*="main"]`, `div[id*="main"]`,
}

var removeSelector = strings.Join(RemoveSelectors, ", ")

// ExtractText returns the main text of the page with whitespace collapsed,
// or "" when the page has no text at all. doc is not modified.
//
// The first container whose cleaned text exceeds SufficientTextLength wins;
// otherwise the whole cleaned body is returned, however short.
func ExtractText(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	root := doc.Selection.Clone()
	stripNoise(root)

	for _, sel := range ContentSelectors {
		match := root.Find(sel).First()
		if match.Length() == 0 {
			continue
		}
		candidate := match.Clone()
		stripNoise(candidate)
		text := collapseSpace(candidate.Text())
		if utf8.RuneCountInString(text) > SufficientTextLength {
			return text
		}
	}

	body := root.Find("body").First()
	if body.Length() == 0 {
		body = root
	}
	return collapseSpace(body.Text())
}

func stripNoise(s *goquery.Selection) {
	s.Find(removeSelector).Remove()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
