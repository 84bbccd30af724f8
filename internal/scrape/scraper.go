// Package scrape fetches article pages and extracts their main text and a
// representative image.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/infblueocean/newsmap/internal/otel"
)

const (
	// DefaultTimeout bounds one article page fetch.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is a desktop Chrome user agent.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"

	// maxBodyBytes caps how much of a page is read.
	maxBodyBytes = 5 << 20
)

// ScrapedData is the outcome of one scrape. Empty fields mean the value
// could not be determined; Err records why a scrape produced nothing and
// is informational only.
type ScrapedData struct {
	TextContent  string
	MainImageURL string
	Err          error
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return "unexpected status " + e.Status
}

// Options configures a Scraper. Zero values select the defaults.
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	RatePerHost float64      // requests per second per host; 0 = unlimited
	Client      *http.Client // overrides Timeout when set
}

// Scraper fetches article pages. Safe for concurrent use.
type Scraper struct {
	client    *http.Client
	userAgent string
	limits    *hostLimiter
	logger    *otel.Logger
}

// NewScraper creates a Scraper. l may be nil.
func NewScraper(opts Options, l *otel.Logger) *Scraper {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	var limits *hostLimiter
	if opts.RatePerHost > 0 {
		limits = newHostLimiter(opts.RatePerHost)
	}
	return &Scraper{
		client:    client,
		userAgent: opts.UserAgent,
		limits:    limits,
		logger:    l,
	}
}

// Scrape fetches pageURL and extracts text and image. It never returns an
// error and never panics: every failure yields empty data with Err set.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (data ScrapedData) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			data = ScrapedData{Err: fmt.Errorf("scrape %s: panic: %v", pageURL, r)}
		}
		s.report(pageURL, data, time.Since(start))
	}()

	if s.limits != nil {
		if err := s.limits.wait(ctx, pageURL); err != nil {
			return ScrapedData{Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return ScrapedData{Err: err}
	}

	return ScrapedData{
		MainImageURL: ResolveImage(doc, pageURL),
		TextContent:  ExtractText(doc),
	}
}

// fetchDocument GETs pageURL and parses the body as HTML, decoding it to
// UTF-8 according to the response's declared or sniffed charset.
func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", acceptHTML)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	utf8Body, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		// Unknown charset label: parse the raw bytes.
		utf8Body = body
	}

	doc, err := goquery.NewDocumentFromReader(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

func (s *Scraper) report(pageURL string, data ScrapedData, dur time.Duration) {
	if data.Err != nil {
		ev := otel.Event{
			Level: otel.LevelWarn,
			Kind:  otel.KindScrapeError,
			Comp:  "scrape",
			URL:   pageURL,
			Dur:   dur,
			Err:   data.Err.Error(),
		}
		if se, ok := data.Err.(*StatusError); ok {
			ev.Status = se.Code
		}
		s.logger.Emit(ev)
		return
	}
	s.logger.Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindScrapeComplete,
		Comp:  "scrape",
		URL:   pageURL,
		Dur:   dur,
		Count: utf8.RuneCountInString(data.TextContent),
		Extra: map[string]any{"image": data.MainImageURL != ""},
	})
}

// hostLimiter hands out one token bucket per host.
type hostLimiter struct {
	mu     sync.Mutex
	perSec rate.Limit
	hosts  map[string]*rate.Limiter
}

func newHostLimiter(perSec float64) *hostLimiter {
	return &hostLimiter{
		perSec: rate.Limit(perSec),
		hosts:  make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiter) wait(ctx context.Context, pageURL string) error {
	host := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		host = u.Host
	}

	h.mu.Lock()
	lim, ok := h.hosts[host]
	if !ok {
		lim = rate.NewLimiter(h.perSec, 1)
		h.hosts[host] = lim
	}
	h.mu.Unlock()

	return lim.Wait(ctx)
}
