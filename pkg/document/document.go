// Package document defines the canonical document record shared by the
// editing session, the preview pipeline, and the persistence layer.
package document

import (
	"time"

	"github.com/google/uuid"
)

// Document is the in-memory record for a single piece of writing.
// Content holds the serialized editor tree (opaque JSON from the rich-text
// surface); HTML is the flat rendering derived from it, used for previews,
// counts, and export.
type Document struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	HTML        string `json:"htmlContent"`
	WordCount   int    `json:"wordCount"`
	CharCount   int    `json:"characterCount"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
	LastSavedAt int64  `json:"lastSavedAt,omitempty"` // 0 = never saved
}

// New creates an empty untitled document with a fresh id.
func New() *Document {
	now := time.Now().UnixMilli()
	return &Document{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps UpdatedAt. UpdatedAt never moves backwards, so a burst of
// mutations within the same millisecond keeps a consistent timestamp.
func (d *Document) Touch() {
	now := time.Now().UnixMilli()
	if now > d.UpdatedAt {
		d.UpdatedAt = now
	}
}

// Snapshot is a value copy of a document captured at flush start.
// A flush that is still in flight when the user switches documents applies
// its completion side effects against the snapshot's id, never against
// whatever document happens to be current when the gateway resolves.
type Snapshot struct {
	ID        string
	Title     string
	Content   string
	HTML      string
	WordCount int
	CharCount int
	CreatedAt int64
	UpdatedAt int64
}

// Snapshot captures the document's current state by value.
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		HTML:      d.HTML,
		WordCount: d.WordCount,
		CharCount: d.CharCount,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
