package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"golang.org/x/net/html/charset"

	"github.com/infblueocean/newsmap/internal/otel"
)

const (
	// DefaultTitle is used when an entry has no title.
	DefaultTitle = "No title"

	// DescriptionLimit is the maximum description length in runes before
	// the ellipsis is appended.
	DescriptionLimit = 250

	// DateLayout is the display format of RawArticle.PubDate.
	DateLayout = "02/01/2006"

	// DefaultPlaceholder is the seeded placeholder image template.
	DefaultPlaceholder = "https://picsum.photos/seed/%s/160/90"
)

// htmlTagRe matches HTML tags.
var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// Parser converts feed XML into RawArticle stubs. It holds no per-call state
// and is safe for concurrent use.
type Parser struct {
	// Placeholder is a fmt template with one %s for the seed. Empty disables
	// placeholder images, leaving ImageURL empty when nothing else is found.
	Placeholder string

	// Now is used only to synthesize IDs for entries without a link.
	Now func() time.Time

	logger *otel.Logger
}

// NewParser creates a Parser using the default placeholder template.
func NewParser(l *otel.Logger) *Parser {
	return &Parser{
		Placeholder: DefaultPlaceholder,
		Now:         time.Now,
		logger:      l,
	}
}

// Parse converts one RSS or Atom document into articles, in feed order.
// Malformed XML is logged, never returned as an error. When the document
// breaks after some complete entries (a truncated body), those entries
// are still returned.
func (p *Parser) Parse(xmlText, sourceName string) []RawArticle {
	parsed, err := gofeed.NewParser().ParseString(xmlText)
	if err != nil {
		ev := otel.Event{
			Level:  otel.LevelWarn,
			Kind:   otel.KindParseError,
			Comp:   "feed",
			Source: sourceName,
			Err:    err.Error(),
		}
		recovered, rerr := recoverEntries(xmlText)
		if rerr != nil {
			p.logger.Emit(ev)
			return nil
		}
		ev.Count = len(recovered.Items)
		ev.Msg = "recovered complete entries"
		p.logger.Emit(ev)
		parsed = recovered
	}

	articles := make([]RawArticle, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		if item == nil {
			continue
		}
		articles = append(articles, p.convertItem(item, i, sourceName))
	}
	return articles
}

var errNoEntries = errors.New("no complete item or entry")

// recoverEntries cuts the document after its last closed item or entry,
// closes every element still open at that point and parses it again.
func recoverEntries(xmlText string) (*gofeed.Feed, error) {
	cut := -1
	for _, tag := range []string{"</item>", "</entry>"} {
		if i := strings.LastIndex(xmlText, tag); i >= 0 && i+len(tag) > cut {
			cut = i + len(tag)
		}
	}
	if cut < 0 {
		return nil, errNoEntries
	}

	var b strings.Builder
	b.WriteString(xmlText[:cut])
	open := openElements(xmlText[:cut])
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
	return gofeed.NewParser().ParseString(b.String())
}

// openElements returns the qualified names of the elements left open at
// the end of doc, outermost first.
func openElements(doc string) []string {
	d := xml.NewDecoder(strings.NewReader(doc))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	var stack []string
	for {
		tok, err := d.RawToken()
		if err != nil {
			return stack
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, qualifiedName(t.Name))
		case xml.EndElement:
			name := qualifiedName(t.Name)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == name {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// qualifiedName renders a raw token name; Space holds the prefix.
func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// convertItem maps one gofeed item onto a RawArticle.
func (p *Parser) convertItem(item *gofeed.Item, index int, sourceName string) RawArticle {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = DefaultTitle
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}

	rawDescription := item.Description
	if strings.TrimSpace(rawDescription) == "" {
		rawDescription = item.Content
	}

	image := mediaImage(item)
	if image == "" {
		image = descriptionImage(rawDescription, link)
	}
	if image == "" && p.Placeholder != "" {
		image = fmt.Sprintf(p.Placeholder, placeholderSeed(title, index))
	}

	id := link
	if id == "" {
		id = p.syntheticID(sourceName, index)
	}

	return RawArticle{
		ID:          id,
		Title:       title,
		Link:        link,
		PubDate:     p.pubDate(item, title, sourceName),
		Description: PlainText(rawDescription, DescriptionLimit),
		Source:      sourceName,
		ImageURL:    image,
	}
}

func (p *Parser) syntheticID(sourceName string, index int) string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%d-%s", sourceName, now().UnixMilli(), index, suffix)
}

// pubDate returns the display date, or "" when no date parses.
// Order: pubDate, dc:date, published, updated.
func (p *Parser) pubDate(item *gofeed.Item, title, sourceName string) string {
	if item.PublishedParsed != nil {
		return FormatDate(*item.PublishedParsed)
	}
	var candidates []string
	if item.DublinCoreExt != nil {
		candidates = append(candidates, item.DublinCoreExt.Date...)
	}
	candidates = append(candidates, item.Published)

	var raw string
	for i, c := range append(candidates, item.Updated) {
		if i == len(candidates) && item.UpdatedParsed != nil {
			return FormatDate(*item.UpdatedParsed)
		}
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if raw == "" {
			raw = c
		}
		if t, err := dateparse.ParseAny(c); err == nil {
			return FormatDate(t)
		}
	}
	if raw != "" {
		p.logger.Emit(otel.Event{
			Level:  otel.LevelWarn,
			Kind:   otel.KindDateError,
			Comp:   "feed",
			Source: sourceName,
			Msg:    fmt.Sprintf("could not parse date %q for %q", raw, title),
		})
	}
	return ""
}

// FormatDate renders t in the PubDate display layout (UTC calendar day).
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// PlainText strips tags, decodes entities and collapses whitespace, then
// truncates to limit runes with "..." appended when anything was cut.
// A limit <= 0 disables truncation.
func PlainText(s string, limit int) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

// mediaImage looks for an image among media:content, media:thumbnail,
// enclosures (RSS enclosures and Atom rel="enclosure" links) and the
// image gofeed itself derived.
func mediaImage(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			if u := imageFromExtensions(media[name]); u != "" {
				return u
			}
		}
		for _, group := range media["group"] {
			for _, name := range []string{"content", "thumbnail"} {
				if u := imageFromExtensions(group.Children[name]); u != "" {
					return u
				}
			}
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil && isImageType(enc.Type) && strings.TrimSpace(enc.URL) != "" {
			return strings.TrimSpace(enc.URL)
		}
	}
	if item.Image != nil && strings.TrimSpace(item.Image.URL) != "" {
		return strings.TrimSpace(item.Image.URL)
	}
	return ""
}

func imageFromExtensions(exts []ext.Extension) string {
	for _, e := range exts {
		typ := e.Attrs["type"]
		medium := e.Attrs["medium"]
		if typ != "" && !isImageType(typ) {
			continue
		}
		if medium != "" && medium != "image" {
			continue
		}
		u := e.Attrs["url"]
		if u == "" {
			u = e.Attrs["href"]
		}
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

func isImageType(t string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(t)), "image")
}

// descriptionImage returns the first <img src> in the description HTML,
// resolved against the article link.
func descriptionImage(rawHTML, link string) string {
	if !strings.Contains(rawHTML, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if u, ok := ResolveURL(src, link); ok {
			found = u
			return false
		}
		return true
	})
	return found
}

// placeholderSeed builds a stable seed from the alphanumeric characters of
// the title (first 20) plus the entry index.
func placeholderSeed(title string, index int) string {
	var b strings.Builder
	for _, r := range title {
		if b.Len() >= 20 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return url.PathEscape(b.String() + strconv.Itoa(index))
}
