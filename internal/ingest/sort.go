package ingest

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/infblueocean/newsmap/internal/feed"
)

var displayDateRe = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// ParseDate converts a RawArticle.PubDate into a sortable time. DD/MM/YYYY
// is read explicitly (out-of-range days roll over into the next month);
// anything else goes through dateparse. Missing or unparseable dates
// return the zero time, which sorts last.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if m := displayDateRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SortByDate orders articles newest first. Articles with equal dates keep
// their relative order.
func SortByDate(articles []feed.RawArticle) {
	type keyed struct {
		article feed.RawArticle
		at      time.Time
	}
	ks := make([]keyed, len(articles))
	for i, a := range articles {
		ks[i] = keyed{article: a, at: ParseDate(a.PubDate)}
	}
	slices.SortStableFunc(ks, func(x, y keyed) int {
		return y.at.Compare(x.at)
	})
	for i := range ks {
		articles[i] = ks[i].article
	}
}
