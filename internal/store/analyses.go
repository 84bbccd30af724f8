package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/infblueocean/newsmap/internal/analysis"
	"github.com/infblueocean/newsmap/internal/feed"
)

// SaveAnalysis stores the classification of an already saved article,
// replacing any earlier one.
// Thread-safe: acquires write lock.
func (s *Store) SaveAnalysis(a analysis.AnalyzedArticle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO analyses (
			article_id, category, importance, location, latitude, longitude,
			summary, image, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			category = excluded.category,
			importance = excluded.importance,
			location = excluded.location,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			summary = excluded.summary,
			image = excluded.image,
			analyzed_at = excluded.analyzed_at
	`, a.ID, a.Category, a.Importance, a.Location, nullFloat(a.Latitude), nullFloat(a.Longitude),
		a.Summary, a.Image, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", a.ID, err)
	}
	return nil
}

// GetAnalyzed returns up to limit analyzed articles, most important first.
// Thread-safe: acquires read lock.
func (s *Store) GetAnalyzed(limit int) ([]analysis.AnalyzedArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+articleColumns+`,
			n.category, n.importance, n.location, n.latitude, n.longitude, n.summary, n.image
		FROM analyses n
		JOIN articles a ON a.id = n.article_id
		ORDER BY n.importance DESC, a.published_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analysis.AnalyzedArticle
	for rows.Next() {
		var (
			aa                analysis.AnalyzedArticle
			location, summary sql.NullString
			image             sql.NullString
			lat, lon          sql.NullFloat64
		)
		raw, err := scanArticle(rows, &aa.Category, &aa.Importance, &location, &lat, &lon, &summary, &image)
		if err != nil {
			return nil, err
		}
		aa.RawArticle = raw
		aa.Location = location.String
		aa.Summary = summary.String
		aa.Image = image.String
		aa.Latitude = floatPtr(lat)
		aa.Longitude = floatPtr(lon)
		out = append(out, aa)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ArticlesNeedingAnalysis returns up to limit unanalyzed articles, newest
// first.
func (s *Store) ArticlesNeedingAnalysis(limit int) ([]feed.RawArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryArticles(`
		SELECT `+articleColumns+`
		FROM articles a
		LEFT JOIN analyses n ON n.article_id = a.id
		WHERE n.article_id IS NULL
		ORDER BY a.published_at DESC, a.rowid ASC
		LIMIT ?
	`, limit)
}

// AnalysisCount returns the number of stored analyses.
func (s *Store) AnalysisCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM analyses").Scan(&count)
	return count, err
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
