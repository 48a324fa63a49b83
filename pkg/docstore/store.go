// Package docstore provides the in-memory set of known documents for a
// running session. Documents are hydrated from the persistence layer at
// startup; a document retired by a switch or create-new is parked here with
// its latest edited state intact, never discarded.
package docstore

import (
	"sync"

	"github.com/stationhq/stationkit/pkg/document"
)

// Store holds known documents in memory.
// Thread-safe for concurrent access from host callbacks and flush timers.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*document.Document
}

// New creates an empty document store.
func New() *Store {
	return &Store{
		docs: make(map[string]*document.Document),
	}
}

// Hydrate bulk-loads documents into the store.
// Called once at startup with all persisted documents.
func (s *Store) Hydrate(docs []*document.Document) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return len(docs)
}

// Put adds or replaces a single document.
func (s *Store) Put(doc *document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.ID] = doc
}

// Remove deletes a document from the store.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, id)
}

// Get retrieves a document by ID.
// Returns nil if not found.
func (s *Store) Get(id string) *document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.docs[id]
}

// Count returns the number of documents in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.docs)
}

// AllIDs returns all document IDs.
func (s *Store) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	return ids
}

// Titles returns id -> title for every document with a non-empty title.
// Used to compile the mention-scanning dictionary.
func (s *Store) Titles() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make(map[string]string, len(s.docs))
	for id, doc := range s.docs {
		if doc.Title != "" {
			titles[id] = doc.Title
		}
	}
	return titles
}

// Clear removes all documents.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[string]*document.Document)
}
