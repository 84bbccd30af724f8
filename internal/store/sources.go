package store

import (
	"database/sql"
	"time"

	"github.com/infblueocean/newsmap/internal/feed"
)

// SourceStatus is the outcome of the most recent fetch of a source.
type SourceStatus struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	LastFetched  time.Time `json:"lastFetched"`
	ArticleCount int       `json:"articleCount"`
	LastError    string    `json:"lastError,omitempty"`
	ErrorCount   int       `json:"errorCount"` // consecutive failures
}

// UpdateSourceStatus records a fetch outcome. lastError "" marks success
// and resets the consecutive failure count.
func (s *Store) UpdateSourceStatus(src feed.Source, articleCount int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sources (name, url, last_fetched_at, article_count, last_error, error_count)
		VALUES (?, ?, ?, ?, ?, CASE WHEN ? != '' THEN 1 ELSE 0 END)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			last_fetched_at = excluded.last_fetched_at,
			article_count = excluded.article_count,
			last_error = excluded.last_error,
			error_count = CASE WHEN excluded.last_error != '' THEN error_count + 1 ELSE 0 END
	`, src.Name, src.URL, time.Now().UTC(), articleCount, lastError, lastError)
	return err
}

// SourceStatuses returns every recorded source ordered by name.
func (s *Store) SourceStatuses() ([]SourceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT name, url, last_fetched_at, article_count, last_error, error_count
		FROM sources
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceStatus
	for rows.Next() {
		var st SourceStatus
		var url, lastErr sql.NullString
		var fetched sql.NullTime
		if err := rows.Scan(&st.Name, &url, &fetched, &st.ArticleCount, &lastErr, &st.ErrorCount); err != nil {
			return nil, err
		}
		st.URL = url.String
		st.LastFetched = fetched.Time
		st.LastError = lastErr.String
		out = append(out, st)
	}
	return out, rows.Err()
}
