// SQLite store implementation using ncruces/go-sqlite3/driver, which
// provides a database/sql interface over an embedded WASM sqlite build.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore is the SQLite-backed data store.
// Thread-safe for concurrent host callbacks and flush goroutines.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// schema defines all tables for the persistence layer.
const schema = `
-- Documents (current state)
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    html_content TEXT NOT NULL DEFAULT '',
    project_id TEXT,
    status TEXT NOT NULL DEFAULT 'draft',
    word_count INTEGER NOT NULL DEFAULT 0,
    character_count INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 1,
    published_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

-- Document versions (save history)
CREATE TABLE IF NOT EXISTS document_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    html_content TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_versions_document ON document_versions(document_id, version);

-- Scheduled posts
CREATE TABLE IF NOT EXISTS scheduled_posts (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    account_id TEXT NOT NULL,
    publication_id TEXT,
    title TEXT NOT NULL DEFAULT '',
    scheduled_at INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    published_url TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scheduled_time ON scheduled_posts(scheduled_at, status);

-- Activity log
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT,
    details TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_time ON activity_log(created_at DESC);
`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Documents
// =============================================================================

// SaveDocument upserts a document and appends a version-history row.
// Idempotent: the last writer for a given id wins. The stored version number
// is bumped on every save of an existing document.
func (s *SQLiteStore) SaveDocument(rec *DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var currentVersion int
	err := s.db.QueryRow(`SELECT version FROM documents WHERE id = ?`, rec.ID).Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if err == sql.ErrNoRows {
		rec.Version = 1
		if rec.Status == "" {
			rec.Status = StatusDraft
		}
		_, err = s.db.Exec(`
			INSERT INTO documents (id, title, content, html_content, project_id, status,
				word_count, character_count, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.Title, rec.Content, rec.HTMLContent, nullable(rec.ProjectID), rec.Status,
			rec.WordCount, rec.CharCount, rec.Version, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return err
		}
	} else {
		rec.Version = currentVersion + 1
		_, err = s.db.Exec(`
			UPDATE documents SET title = ?, content = ?, html_content = ?,
				word_count = ?, character_count = ?, version = ?, updated_at = ?
			WHERE id = ?
		`, rec.Title, rec.Content, rec.HTMLContent,
			rec.WordCount, rec.CharCount, rec.Version, rec.UpdatedAt, rec.ID)
		if err != nil {
			return err
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO document_versions (document_id, title, content, html_content, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Title, rec.Content, rec.HTMLContent, rec.Version, time.Now().UnixMilli())
	return err
}

// GetDocument retrieves a document by ID.
// Returns (nil, nil) if not found.
func (s *SQLiteStore) GetDocument(id string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec DocumentRecord
	var projectID sql.NullString
	var publishedAt sql.NullInt64

	err := s.db.QueryRow(`
		SELECT id, title, content, html_content, project_id, status,
			word_count, character_count, version, published_at, created_at, updated_at
		FROM documents WHERE id = ?
	`, id).Scan(
		&rec.ID, &rec.Title, &rec.Content, &rec.HTMLContent, &projectID, &rec.Status,
		&rec.WordCount, &rec.CharCount, &rec.Version, &publishedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if projectID.Valid {
		rec.ProjectID = projectID.String
	}
	if publishedAt.Valid {
		rec.PublishedAt = publishedAt.Int64
	}
	return &rec, nil
}

// ListDocuments returns metadata for all documents, newest first.
func (s *SQLiteStore) ListDocuments() ([]*DocumentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, title, project_id, status, word_count, character_count, created_at, updated_at
		FROM documents ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []*DocumentMeta
	for rows.Next() {
		var m DocumentMeta
		var projectID sql.NullString
		if err := rows.Scan(&m.ID, &m.Title, &projectID, &m.Status,
			&m.WordCount, &m.CharCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		if projectID.Valid {
			m.ProjectID = projectID.String
		}
		metas = append(metas, &m)
	}
	return metas, rows.Err()
}

// DeleteDocument removes a document, its history, and its scheduled posts.
func (s *SQLiteStore) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM document_versions WHERE document_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM scheduled_posts WHERE document_id = ?`, id)
	return err
}

// CountDocuments returns the number of documents.
func (s *SQLiteStore) CountDocuments() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// SetStatus updates a document's lifecycle status independent of content.
func (s *SQLiteStore) SetStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set status for document %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetPublished marks a document as published at the given time.
func (s *SQLiteStore) SetPublished(id string, url string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE documents SET status = ?, published_at = ?, updated_at = ? WHERE id = ?
	`, StatusPublished, at, at, id)
	if err != nil {
		return err
	}
	if url != "" {
		logActivityLocked(s.db, "document.published", "document", id, url)
	}
	return nil
}

// =============================================================================
// Version history
// =============================================================================

// GetVersion retrieves a specific saved version of a document.
// Returns (nil, nil) if not found.
func (s *SQLiteStore) GetVersion(id string, version int) (*DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v DocumentVersion
	err := s.db.QueryRow(`
		SELECT document_id, title, content, html_content, version, created_at
		FROM document_versions WHERE document_id = ? AND version = ?
		ORDER BY id DESC LIMIT 1
	`, id, version).Scan(&v.DocumentID, &v.Title, &v.Content, &v.HTMLContent, &v.Version, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions returns all saved versions of a document, newest first.
func (s *SQLiteStore) ListVersions(id string) ([]*DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT document_id, title, content, html_content, version, created_at
		FROM document_versions WHERE document_id = ? ORDER BY version DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*DocumentVersion
	for rows.Next() {
		var v DocumentVersion
		if err := rows.Scan(&v.DocumentID, &v.Title, &v.Content, &v.HTMLContent,
			&v.Version, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// =============================================================================
// Scheduled posts
// =============================================================================

// AddScheduledPost inserts a pending post.
func (s *SQLiteStore) AddScheduledPost(post *ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.Status == "" {
		post.Status = PostPending
	}
	now := time.Now().UnixMilli()
	if post.CreatedAt == 0 {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO scheduled_posts (id, document_id, platform, account_id, publication_id,
			title, scheduled_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, post.ID, post.DocumentID, post.Platform, post.AccountID, nullable(post.PublicationID),
		post.Title, post.ScheduledAt, post.Status, post.CreatedAt, post.UpdatedAt)
	return err
}

// DuePosts returns pending posts whose scheduled time has passed, oldest first.
func (s *SQLiteStore) DuePosts(now int64) ([]*ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, document_id, platform, account_id, publication_id, title,
			scheduled_at, status, error_message, published_url, created_at, updated_at
		FROM scheduled_posts
		WHERE scheduled_at <= ? AND status = ?
		ORDER BY scheduled_at ASC
	`, now, PostPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*ScheduledPost
	for rows.Next() {
		var p ScheduledPost
		var publicationID, errorMessage, publishedURL sql.NullString
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Platform, &p.AccountID, &publicationID,
			&p.Title, &p.ScheduledAt, &p.Status, &errorMessage, &publishedURL,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if publicationID.Valid {
			p.PublicationID = publicationID.String
		}
		if errorMessage.Valid {
			p.ErrorMessage = errorMessage.String
		}
		if publishedURL.Valid {
			p.PublishedURL = publishedURL.String
		}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

// SetPostStatus updates a scheduled post's status and error message.
func (s *SQLiteStore) SetPostStatus(id, status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE scheduled_posts SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, status, nullable(errorMessage), time.Now().UnixMilli(), id)
	return err
}

// SetPostPublished marks a post as published with its public URL.
func (s *SQLiteStore) SetPostPublished(id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE scheduled_posts SET status = ?, published_url = ?, error_message = NULL, updated_at = ? WHERE id = ?
	`, PostPublished, url, time.Now().UnixMilli(), id)
	return err
}

// =============================================================================
// Activity log
// =============================================================================

// LogActivity appends to the activity log. Failures are ignored; the log is
// advisory and must never fail a save.
func (s *SQLiteStore) LogActivity(action, entityType, entityID, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logActivityLocked(s.db, action, entityType, entityID, details)
}

func logActivityLocked(db *sql.DB, action, entityType, entityID, details string) {
	_, _ = db.Exec(`
		INSERT INTO activity_log (action, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, action, entityType, nullable(entityID), nullable(details), time.Now().UnixMilli())
}

// RecentActivity returns the most recent log entries, newest first.
func (s *SQLiteStore) RecentActivity(limit int) ([]*ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, action, entity_type, entity_id, details, created_at
		FROM activity_log ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var entityID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if details.Valid {
			e.Details = details.String
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// =============================================================================
// Export / Import
// =============================================================================

type exportData struct {
	Documents []*DocumentRecord  `json:"documents"`
	Versions  []*DocumentVersion `json:"versions"`
	Posts     []*ScheduledPost   `json:"scheduledPosts"`
}

// Export serializes the database to JSON bytes.
// This is a portable export that doesn't depend on sqlite3 serialization APIs.
func (s *SQLiteStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data exportData

	docRows, err := s.db.Query(`
		SELECT id, title, content, html_content, project_id, status,
			word_count, character_count, version, published_at, created_at, updated_at
		FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("export documents: %w", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var rec DocumentRecord
		var projectID sql.NullString
		var publishedAt sql.NullInt64
		if err := docRows.Scan(&rec.ID, &rec.Title, &rec.Content, &rec.HTMLContent,
			&projectID, &rec.Status, &rec.WordCount, &rec.CharCount, &rec.Version,
			&publishedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if projectID.Valid {
			rec.ProjectID = projectID.String
		}
		if publishedAt.Valid {
			rec.PublishedAt = publishedAt.Int64
		}
		data.Documents = append(data.Documents, &rec)
	}

	verRows, err := s.db.Query(`
		SELECT document_id, title, content, html_content, version, created_at
		FROM document_versions
	`)
	if err != nil {
		return nil, fmt.Errorf("export versions: %w", err)
	}
	defer verRows.Close()
	for verRows.Next() {
		var v DocumentVersion
		if err := verRows.Scan(&v.DocumentID, &v.Title, &v.Content, &v.HTMLContent,
			&v.Version, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		data.Versions = append(data.Versions, &v)
	}

	postRows, err := s.db.Query(`
		SELECT id, document_id, platform, account_id, publication_id, title,
			scheduled_at, status, error_message, published_url, created_at, updated_at
		FROM scheduled_posts
	`)
	if err != nil {
		return nil, fmt.Errorf("export scheduled posts: %w", err)
	}
	defer postRows.Close()
	for postRows.Next() {
		var p ScheduledPost
		var publicationID, errorMessage, publishedURL sql.NullString
		if err := postRows.Scan(&p.ID, &p.DocumentID, &p.Platform, &p.AccountID, &publicationID,
			&p.Title, &p.ScheduledAt, &p.Status, &errorMessage, &publishedURL,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled post: %w", err)
		}
		if publicationID.Valid {
			p.PublicationID = publicationID.String
		}
		if errorMessage.Valid {
			p.ErrorMessage = errorMessage.String
		}
		if publishedURL.Valid {
			p.PublishedURL = publishedURL.String
		}
		data.Posts = append(data.Posts, &p)
	}

	return json.Marshal(data)
}

// Import restores the database state from an exported JSON byte slice.
// Clears all existing data and re-inserts from the export.
func (s *SQLiteStore) Import(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) == 0 {
		return nil
	}

	var importData exportData
	if err := json.Unmarshal(data, &importData); err != nil {
		return fmt.Errorf("import unmarshal: %w", err)
	}

	for _, table := range []string{"scheduled_posts", "document_versions", "documents"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, rec := range importData.Documents {
		version := rec.Version
		if version == 0 {
			version = 1
		}
		status := rec.Status
		if status == "" {
			status = StatusDraft
		}
		_, err := s.db.Exec(`
			INSERT INTO documents (id, title, content, html_content, project_id, status,
				word_count, character_count, version, published_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.Title, rec.Content, rec.HTMLContent, nullable(rec.ProjectID), status,
			rec.WordCount, rec.CharCount, version, nullableInt(rec.PublishedAt),
			rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import document %s: %w", rec.ID, err)
		}
	}

	for _, v := range importData.Versions {
		_, err := s.db.Exec(`
			INSERT INTO document_versions (document_id, title, content, html_content, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, v.DocumentID, v.Title, v.Content, v.HTMLContent, v.Version, v.CreatedAt)
		if err != nil {
			return fmt.Errorf("import version %s/%d: %w", v.DocumentID, v.Version, err)
		}
	}

	for _, p := range importData.Posts {
		_, err := s.db.Exec(`
			INSERT INTO scheduled_posts (id, document_id, platform, account_id, publication_id,
				title, scheduled_at, status, error_message, published_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.DocumentID, p.Platform, p.AccountID, nullable(p.PublicationID),
			p.Title, p.ScheduledAt, p.Status, nullable(p.ErrorMessage), nullable(p.PublishedURL),
			p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import scheduled post %s: %w", p.ID, err)
		}
	}

	return nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableInt maps 0 to NULL for optional integer columns.
func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
