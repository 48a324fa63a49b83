// Package store provides SQLite-backed persistence for StationKit.
// It is the durable side of the editing session: documents, their version
// history, scheduled posts, and the activity log.
package store

import "errors"

// ErrNotFound is returned by operations that require an existing row.
// Plain getters return (nil, nil) for missing rows instead.
var ErrNotFound = errors.New("not found")

// Document statuses. Saving never changes status; it moves through the
// lifecycle explicitly (SetStatus, SetPublished).
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
)

// Scheduled post statuses.
const (
	PostPending    = "pending"
	PostPublishing = "publishing"
	PostPublished  = "published"
	PostFailed     = "failed"
)

// DocumentRecord is a persisted document row.
// Content is the serialized editor tree; HTMLContent the flat projection.
type DocumentRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	HTMLContent string `json:"htmlContent"`
	ProjectID   string `json:"projectId,omitempty"`
	Status      string `json:"status"`
	WordCount   int    `json:"wordCount"`
	CharCount   int    `json:"characterCount"`
	Version     int    `json:"version"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
	PublishedAt int64  `json:"publishedAt,omitempty"`
}

// DocumentMeta is the listing projection: everything a document list needs
// without pulling full content off disk.
type DocumentMeta struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ProjectID string `json:"projectId,omitempty"`
	Status    string `json:"status"`
	WordCount int    `json:"wordCount"`
	CharCount int    `json:"characterCount"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// DocumentVersion is one row of a document's saved history.
type DocumentVersion struct {
	DocumentID  string `json:"documentId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	HTMLContent string `json:"htmlContent"`
	Version     int    `json:"version"`
	CreatedAt   int64  `json:"createdAt"`
}

// ScheduledPost is a pending publish of a document to an external platform.
type ScheduledPost struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	Platform      string `json:"platform"`
	AccountID     string `json:"accountId"`
	PublicationID string `json:"publicationId,omitempty"`
	Title         string `json:"title"`
	ScheduledAt   int64  `json:"scheduledAt"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	PublishedURL  string `json:"publishedUrl,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// ActivityEntry is one row of the append-only activity log.
type ActivityEntry struct {
	ID         int64  `json:"id"`
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId,omitempty"`
	Details    string `json:"details,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

// Storer defines the interface for data persistence.
// SQLiteStore is the sole implementation.
type Storer interface {
	// Documents
	SaveDocument(rec *DocumentRecord) error
	GetDocument(id string) (*DocumentRecord, error)
	ListDocuments() ([]*DocumentMeta, error)
	DeleteDocument(id string) error
	CountDocuments() (int, error)
	SetStatus(id, status string) error
	SetPublished(id string, url string, at int64) error

	// Version history
	GetVersion(id string, version int) (*DocumentVersion, error)
	ListVersions(id string) ([]*DocumentVersion, error)

	// Scheduled posts
	AddScheduledPost(post *ScheduledPost) error
	DuePosts(now int64) ([]*ScheduledPost, error)
	SetPostStatus(id, status, errorMessage string) error
	SetPostPublished(id, url string) error

	// Activity log
	LogActivity(action, entityType, entityID, details string)
	RecentActivity(limit int) ([]*ActivityEntry, error)

	// Export/Import (database serialization for host-side backup sync)
	Export() ([]byte, error)
	Import(data []byte) error

	// Lifecycle
	Close() error
}
