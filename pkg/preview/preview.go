// Package preview derives lightweight document metadata for list views and
// cards: an excerpt, the first image, top keywords, and mentions of other
// known documents. Derivation is read-only and decoupled from saving; a slow
// save never delays a preview refresh and a preview failure never touches
// dirty state.
package preview

import (
	"fmt"
	"sync"

	"github.com/stationhq/stationkit/pkg/document"
	"github.com/stationhq/stationkit/pkg/htmltext"
	"github.com/stationhq/stationkit/pkg/links"
)

// Meta is the published preview projection for one document.
type Meta struct {
	DocumentID string          `json:"documentId"`
	Title      string          `json:"title"`
	Excerpt    string          `json:"excerpt"`
	FirstImage string          `json:"firstImage,omitempty"`
	Keywords   []string        `json:"keywords,omitempty"`
	Mentions   []links.Mention `json:"mentions,omitempty"`
	WordCount  int             `json:"wordCount"`
	UpdatedAt  int64           `json:"updatedAt"`
}

// Publisher receives derived preview metadata. Implementations must not
// block; the deriver calls from a timer goroutine.
type Publisher interface {
	PublishPreview(meta Meta)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(meta Meta)

// PublishPreview calls f(meta).
func (f PublisherFunc) PublishPreview(meta Meta) { f(meta) }

// Deriver computes preview metadata from document snapshots.
// Thread-safe: dictionary swaps and derivations may run on different timer
// goroutines. A compiled Dictionary is immutable, so only the pointer needs
// guarding.
type Deriver struct {
	keywords     *keywordExtractor
	excerptRunes int
	maxKeywords  int

	mu   sync.Mutex
	dict *links.Dictionary
}

// NewDeriver creates a Deriver with the given excerpt length and keyword cap.
func NewDeriver(excerptRunes, maxKeywords int) *Deriver {
	return &Deriver{
		keywords:     newKeywordExtractor(),
		excerptRunes: excerptRunes,
		maxKeywords:  maxKeywords,
	}
}

// SetDictionary installs (or replaces) the title dictionary used for mention
// detection. A nil dictionary disables mentions.
func (d *Deriver) SetDictionary(dict *links.Dictionary) {
	d.mu.Lock()
	d.dict = dict
	d.mu.Unlock()
}

// CompileDictionary rebuilds the mention dictionary from id -> title pairs.
func (d *Deriver) CompileDictionary(titles map[string]string) error {
	dict, err := links.Compile(titles)
	if err != nil {
		return fmt.Errorf("compile title dictionary: %w", err)
	}
	d.SetDictionary(dict)
	return nil
}

// Derive computes the preview projection for a snapshot.
func (d *Deriver) Derive(snap document.Snapshot) Meta {
	d.mu.Lock()
	dict := d.dict
	d.mu.Unlock()

	flat := htmltext.Flatten(snap.HTML)
	return Meta{
		DocumentID: snap.ID,
		Title:      snap.Title,
		Excerpt:    htmltext.Excerpt(snap.HTML, d.excerptRunes),
		FirstImage: htmltext.FirstImage(snap.HTML),
		Keywords:   d.keywords.Extract(flat, d.maxKeywords),
		Mentions:   dict.Scan(flat, snap.ID),
		WordCount:  snap.WordCount,
		UpdatedAt:  snap.UpdatedAt,
	}
}
