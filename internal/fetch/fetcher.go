// Package fetch retrieves RSS and Atom feeds through an optional CORS-style
// proxy, parses them into article stubs, and enriches each stub by scraping
// its origin page.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/otel"
	"github.com/infblueocean/newsmap/internal/scrape"
)

const (
	// DefaultProxyURL is prepended to the percent-encoded feed URL.
	DefaultProxyURL = "https://api.allorigins.win/raw?url="

	// DefaultTimeout bounds one feed request, body included.
	DefaultTimeout = 30 * time.Second

	acceptFeed = "application/rss+xml, application/atom+xml, application/xml, text/xml"
	userAgent  = "newsmap/1.0 (+https://github.com/infblueocean/newsmap)"

	// maxFeedBytes caps how much of a feed body is read.
	maxFeedBytes = 20 << 20
)

// ArticleScraper enriches one article page. Implementations never fail;
// problems are reported through ScrapedData.Err.
type ArticleScraper interface {
	Scrape(ctx context.Context, pageURL string) scrape.ScrapedData
}

// FetchError is a transport-level failure to reach a feed, either at the
// origin server or at the proxy.
type FetchError struct {
	Source    string
	URL       string
	ProxyHost string // empty when fetching directly
	Err       error
}

func (e *FetchError) Error() string {
	culprit := "the feed server may be down or blocking requests"
	if e.ProxyHost != "" {
		culprit = fmt.Sprintf("the feed server may be down or blocking requests, or the proxy (%s) may be unable to reach it", e.ProxyHost)
	}
	return fmt.Sprintf("network error: failed to fetch from %s; %s. URL: %s: %v", e.Source, culprit, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusError is a non-2xx feed response.
type StatusError struct {
	Source string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch from %s: %s (Status %d). URL: %s", e.Source, http.StatusText(e.Code), e.Code, e.URL)
}

// Options configures a Fetcher.
type Options struct {
	// ProxyURL is the request prefix; the feed URL is appended
	// percent-encoded. Empty fetches feeds directly.
	ProxyURL string

	// Timeout bounds each feed request. Zero selects DefaultTimeout.
	Timeout time.Duration

	// ScrapeWorkers > 1 scrapes a feed's articles concurrently. Article
	// order is unaffected.
	ScrapeWorkers int

	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Fetcher turns a feed source into enriched article stubs.
type Fetcher struct {
	client    *http.Client
	proxy     string
	proxyHost string
	parser    *feed.Parser
	scraper   ArticleScraper
	workers   int
	logger    *otel.Logger
}

// NewFetcher creates a Fetcher. A nil scraper disables page scraping; a nil
// parser uses feed.NewParser with the same logger.
func NewFetcher(opts Options, parser *feed.Parser, scraper ArticleScraper, l *otel.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if parser == nil {
		parser = feed.NewParser(l)
	}
	return &Fetcher{
		client:    client,
		proxy:     opts.ProxyURL,
		proxyHost: proxyHost(opts.ProxyURL),
		parser:    parser,
		scraper:   scraper,
		workers:   opts.ScrapeWorkers,
		logger:    l,
	}
}

// proxyHost names the proxy for error messages.
func proxyHost(proxy string) string {
	if proxy == "" {
		return ""
	}
	u, err := url.Parse(proxy)
	if err != nil || u.Hostname() == "" {
		return "the configured proxy"
	}
	return u.Hostname()
}

// RequestURL returns the URL actually requested for a feed.
func (f *Fetcher) RequestURL(feedURL string) string {
	if f.proxy == "" {
		return feedURL
	}
	return f.proxy + url.QueryEscape(feedURL)
}

// Fetch downloads, parses and enriches one source. A returned error means
// the whole source failed, except for context errors, which come with the
// articles enriched before cancellation.
func (f *Fetcher) Fetch(ctx context.Context, src feed.Source) ([]feed.RawArticle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	f.logger.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindFetchStart, Comp: "fetch", Source: src.Name, URL: src.URL})

	body, err := f.download(ctx, src)
	if err != nil {
		ev := otel.Event{
			Level:  otel.LevelError,
			Kind:   otel.KindFetchError,
			Comp:   "fetch",
			Source: src.Name,
			URL:    src.URL,
			Dur:    time.Since(start),
			Err:    err.Error(),
		}
		var se *StatusError
		if errors.As(err, &se) {
			ev.Status = se.Code
		}
		f.logger.Emit(ev)
		return nil, err
	}

	articles := f.parser.Parse(body, src.Name)
	if f.scraper != nil {
		err = f.enrich(ctx, src, articles)
	}

	f.logger.Emit(otel.Event{
		Level:  otel.LevelInfo,
		Kind:   otel.KindFetchComplete,
		Comp:   "fetch",
		Source: src.Name,
		URL:    src.URL,
		Dur:    time.Since(start),
		Count:  len(articles),
	})
	return articles, err
}

func (f *Fetcher) download(ctx context.Context, src feed.Source) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.RequestURL(src.URL), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", src.Name, err)
	}
	req.Header.Set("Accept", acceptFeed)
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &FetchError{Source: src.Name, URL: src.URL, ProxyHost: f.proxyHost, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Source: src.Name, URL: src.URL, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &FetchError{Source: src.Name, URL: src.URL, ProxyHost: f.proxyHost, Err: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("empty response from %s. URL: %s", src.Name, src.URL)
	}
	return string(data), nil
}

// enrich scrapes every article with an absolute http(s) link and merges the
// results in place. Articles that cannot be scraped are kept as they are.
func (f *Fetcher) enrich(ctx context.Context, src feed.Source, articles []feed.RawArticle) error {
	if f.workers > 1 {
		return f.enrichConcurrent(ctx, src, articles)
	}
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !f.scrapable(src, articles[i]) {
			continue
		}
		apply(&articles[i], f.scraper.Scrape(ctx, articles[i].Link))
	}
	return nil
}

func (f *Fetcher) enrichConcurrent(ctx context.Context, src feed.Source, articles []feed.RawArticle) error {
	results := make([]*scrape.ScrapedData, len(articles))

	var g errgroup.Group
	g.SetLimit(f.workers)
	for i := range articles {
		if ctx.Err() != nil {
			break
		}
		if !f.scrapable(src, articles[i]) {
			continue
		}
		link := articles[i].Link
		g.Go(func() error {
			data := f.scraper.Scrape(ctx, link)
			results[i] = &data
			return nil
		})
	}
	g.Wait()

	for i, data := range results {
		if data != nil {
			apply(&articles[i], *data)
		}
	}
	return ctx.Err()
}

func (f *Fetcher) scrapable(src feed.Source, a feed.RawArticle) bool {
	if feed.IsAbsoluteHTTP(a.Link) {
		return true
	}
	f.logger.Emit(otel.Event{
		Level:  otel.LevelWarn,
		Kind:   otel.KindScrapeSkip,
		Comp:   "fetch",
		Source: src.Name,
		URL:    a.Link,
		Msg:    fmt.Sprintf("no absolute link for %q", a.Title),
	})
	return false
}

// apply merges scraped fields; empty results leave the article untouched.
func apply(a *feed.RawArticle, data scrape.ScrapedData) {
	if data.TextContent != "" {
		a.FullText = data.TextContent
	}
	if data.MainImageURL != "" {
		a.ScrapedImageURL = data.MainImageURL
	}
}
