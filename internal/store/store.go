// Package store provides SQLite persistence for ingested articles, their
// analyses, and per-source fetch status.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/ingest"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for file-based DBs.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		link TEXT,
		pub_date TEXT,
		description TEXT,
		source TEXT NOT NULL,
		image_url TEXT,
		full_text TEXT,
		scraped_image_url TEXT,
		published_at DATETIME NOT NULL,
		fetched_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);

	CREATE TABLE IF NOT EXISTS analyses (
		article_id TEXT PRIMARY KEY REFERENCES articles(id),
		category TEXT NOT NULL,
		importance REAL NOT NULL,
		location TEXT,
		latitude REAL,
		longitude REAL,
		summary TEXT,
		image TEXT,
		analyzed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_importance ON analyses(importance DESC);

	CREATE TABLE IF NOT EXISTS sources (
		name TEXT PRIMARY KEY,
		url TEXT,
		last_fetched_at DATETIME,
		article_count INTEGER DEFAULT 0,
		last_error TEXT,
		error_count INTEGER DEFAULT 0
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveArticles upserts articles by ID and returns how many were new.
// Re-saving an article refreshes its feed fields but never clears scraped
// text or image with an empty value.
// Thread-safe: acquires write lock.
func (s *Store) SaveArticles(articles []feed.RawArticle) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`
		INSERT OR IGNORE INTO articles (
			id, title, link, pub_date, description, source, image_url,
			full_text, scraped_image_url, published_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	update, err := tx.Prepare(`
		UPDATE articles SET
			title = ?, link = ?, pub_date = ?, description = ?, source = ?, image_url = ?,
			full_text = CASE WHEN ? != '' THEN ? ELSE full_text END,
			scraped_image_url = CASE WHEN ? != '' THEN ? ELSE scraped_image_url END,
			published_at = ?, fetched_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return 0, err
	}
	defer update.Close()

	now := time.Now().UTC()
	newCount := 0
	for _, a := range articles {
		published := ingest.ParseDate(a.PubDate).UTC()

		result, err := insert.Exec(
			a.ID, a.Title, a.Link, a.PubDate, a.Description, a.Source, a.ImageURL,
			a.FullText, a.ScrapedImageURL, published, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert article %s: %w", a.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			newCount++
			continue
		}

		if _, err := update.Exec(
			a.Title, a.Link, a.PubDate, a.Description, a.Source, a.ImageURL,
			a.FullText, a.FullText,
			a.ScrapedImageURL, a.ScrapedImageURL,
			published, now, a.ID,
		); err != nil {
			return 0, fmt.Errorf("update article %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newCount, nil
}

const articleColumns = `a.id, a.title, a.link, a.pub_date, a.description, a.source,
	a.image_url, a.full_text, a.scraped_image_url`

// GetArticles returns up to limit articles, newest first.
// Thread-safe: acquires read lock.
func (s *Store) GetArticles(limit int) ([]feed.RawArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryArticles(`
		SELECT `+articleColumns+`
		FROM articles a
		ORDER BY a.published_at DESC, a.rowid ASC
		LIMIT ?
	`, limit)
}

// ArticleCount returns the number of stored articles.
func (s *Store) ArticleCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM articles").Scan(&count)
	return count, err
}

// queryArticles executes a query and scans results into RawArticles.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryArticles(query string, args ...any) ([]feed.RawArticle, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []feed.RawArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return articles, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner, extra ...any) (feed.RawArticle, error) {
	var a feed.RawArticle
	var link, pubDate, description, image, fullText, scraped sql.NullString
	dest := append([]any{
		&a.ID, &a.Title, &link, &pubDate, &description, &a.Source,
		&image, &fullText, &scraped,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return a, err
	}
	a.Link = link.String
	a.PubDate = pubDate.String
	a.Description = description.String
	a.ImageURL = image.String
	a.FullText = fullText.String
	a.ScrapedImageURL = scraped.String
	return a, nil
}
