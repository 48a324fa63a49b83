// Package session implements the editing-session controller: the single
// mutable holder of "current document" state, the synchronization guard for
// programmatic content replacement, and the autosave and preview schedulers
// that drain edits toward the persistence gateway and the preview pipeline.
//
// The rich-text surface lives in the host (JS); the engine sees it only as
// change notifications coming in and content replacement commands going out.
// All mutation is mutex-guarded: host callbacks arrive on one goroutine,
// debounce timers fire on others.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stationhq/stationkit/pkg/document"
	"github.com/stationhq/stationkit/pkg/docstore"
	"github.com/stationhq/stationkit/pkg/htmltext"
	"github.com/stationhq/stationkit/pkg/preview"
)

// Status is the UI-facing save indicator. It is observational only; the
// dirty flag is what decides whether a flush happens.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Surface is the external rich-text component, seen from the engine.
// Replace commands a programmatic content swap; the surface's own change
// notification for that swap comes back through EditorChanged and is
// ignored while the guard is up.
type Surface interface {
	Replace(content string)
}

// Gateway persists document snapshots durably. Save is idempotent; the last
// writer for a given id wins.
type Gateway interface {
	SaveDocument(ctx context.Context, snap document.Snapshot) error
}

// Config carries the session tunables.
type Config struct {
	AutosaveDelay   time.Duration // idle delay before a timer-driven flush
	PreviewDelay    time.Duration // idle delay before a preview refresh
	SavedResetDelay time.Duration // cosmetic saved -> idle status reset
	ExcerptRunes    int
	MaxKeywords     int

	// Defer schedules the guard release after a programmatic content
	// replacement. The WASM host queues it as a microtask so the surface's
	// asynchronous change notification fires first; the default runs it
	// inline, which is correct for surfaces that notify synchronously
	// during Replace.
	Defer func(func())

	Logger *slog.Logger

	// Notify surfaces user-visible events (save failures). Optional.
	Notify func(event, message string)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AutosaveDelay:   30 * time.Second,
		PreviewDelay:    2 * time.Second,
		SavedResetDelay: 2 * time.Second,
		ExcerptRunes:    280,
		MaxKeywords:     8,
	}
}

// Session is the editing-session controller.
type Session struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger

	surface Surface
	gateway Gateway
	docs    *docstore.Store
	deriver *preview.Deriver
	pub     preview.Publisher

	current     *document.Document
	dirty       bool
	status      Status
	lastSavedAt int64

	// Guard state: suppress makes the surface's change notification for a
	// programmatic replacement invisible to dirty tracking; trackedID is
	// the id the schedulers believe is current.
	suppress  bool
	trackedID string

	// editGen increments on every user edit and on every document switch.
	// A flush captures it at start and skips clean-marking when it moved.
	editGen uint64

	saveTimer    *time.Timer
	previewTimer *time.Timer
	resetTimer   *time.Timer

	flushing  bool
	flushDone chan struct{}
}

// New creates a Session wired to a surface and a persistence gateway.
// Zero-valued Config fields fall back to DefaultConfig.
func New(surface Surface, gateway Gateway, cfg Config) *Session {
	def := DefaultConfig()
	if cfg.AutosaveDelay <= 0 {
		cfg.AutosaveDelay = def.AutosaveDelay
	}
	if cfg.PreviewDelay <= 0 {
		cfg.PreviewDelay = def.PreviewDelay
	}
	if cfg.SavedResetDelay <= 0 {
		cfg.SavedResetDelay = def.SavedResetDelay
	}
	if cfg.ExcerptRunes <= 0 {
		cfg.ExcerptRunes = def.ExcerptRunes
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = def.MaxKeywords
	}
	if cfg.Defer == nil {
		cfg.Defer = func(f func()) { f() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "session"),
		surface: surface,
		gateway: gateway,
		docs:    docstore.New(),
		deriver: preview.NewDeriver(cfg.ExcerptRunes, cfg.MaxKeywords),
		status:  StatusIdle,
	}
}

// SetPreviewPublisher installs the preview collaborator. Without one, the
// preview scheduler stays dormant.
func (s *Session) SetPreviewPublisher(pub preview.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pub = pub
}

// Hydrate bulk-loads known documents, typically once at startup from the
// persistence gateway's listing.
func (s *Session) Hydrate(docs []*document.Document) int {
	return s.docs.Hydrate(docs)
}

// Docs exposes the known-document set.
func (s *Session) Docs() *docstore.Store {
	return s.docs
}

// =============================================================================
// Read access
// =============================================================================

// Snapshot returns a value copy of the current document, false if none.
func (s *Session) Snapshot() (document.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return document.Snapshot{}, false
	}
	return s.current.Snapshot(), true
}

// IsDirty reports whether unsaved mutations exist.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// SaveStatus returns the observational save indicator.
func (s *Session) SaveStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastSavedAt returns the last confirmed save time for the current document
// in unix millis, 0 if never saved.
func (s *Session) LastSavedAt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSavedAt
}

// CurrentID returns the current document's id, "" if none.
func (s *Session) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// =============================================================================
// Mutation operations
// =============================================================================

// SetTitle updates the current document's title. Marks dirty and bumps
// UpdatedAt unless the guard is suppressing.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	if s.current == nil || s.suppress || s.current.Title == title {
		s.mu.Unlock()
		return
	}
	s.current.Title = title
	s.current.Touch()
	s.markEditLocked()
	s.mu.Unlock()
}

// EditorChanged is the surface adapter entry point: the surface calls it on
// every change notification with the serialized tree and its HTML projection.
// Notifications caused by a programmatic Replace are ignored while the guard
// is up.
func (s *Session) EditorChanged(content, html string) {
	words := htmltext.CountWords(html)
	chars := htmltext.CountChars(html)

	s.mu.Lock()
	if s.current == nil || s.suppress {
		s.mu.Unlock()
		return
	}
	s.current.Content = content
	s.current.HTML = html
	s.current.WordCount = words
	s.current.CharCount = chars
	s.current.Touch()
	s.markEditLocked()
	s.mu.Unlock()
}

// SetContent updates the current document's content and HTML projection.
// Same semantics as EditorChanged; hosts that set content outside the
// surface's change path call this directly.
func (s *Session) SetContent(content, html string) {
	s.EditorChanged(content, html)
}

// SetWordCount overrides the derived counts, for hosts that compute their
// own. Does not mark dirty on its own.
func (s *Session) SetWordCount(words, chars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current.WordCount = words
	s.current.CharCount = chars
}

// MarkDirty forces the dirty flag and arms the autosave timer.
func (s *Session) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.dirty = true
	s.editGen++
	s.armAutosaveLocked()
}

// MarkClean clears the dirty flag without saving.
func (s *Session) MarkClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// SetSaveStatus overrides the observational status.
func (s *Session) SetSaveStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// markEditLocked records a user edit: dirty flag, generation bump, both
// debounce timers re-armed. Caller holds s.mu.
func (s *Session) markEditLocked() {
	s.dirty = true
	s.editGen++
	if s.status == StatusSaved {
		s.status = StatusIdle
	}
	s.armAutosaveLocked()
	s.armPreviewLocked()
}

// =============================================================================
// Document switching
// =============================================================================

// CreateNew parks the currently open document in the known set, installs a
// fresh empty document as current, and resets session metadata to clean and
// idle. Returns the new document's id.
func (s *Session) CreateNew() string {
	s.mu.Lock()
	s.stopTimersLocked()
	if s.current != nil {
		s.docs.Put(s.current)
	}

	doc := document.New()
	s.docs.Put(doc)
	s.installLocked(doc)
	surface := s.surface
	s.mu.Unlock()

	surface.Replace(doc.Content)
	s.cfg.Defer(s.releaseGuard)

	s.log.Debug("created document", "id", doc.ID)
	return doc.ID
}

// Load switches to a document from the known set. Returns false without any
// mutation when the id is unknown. The surface content replacement happens
// under the guard, so the surface's resulting change notification never
// marks the freshly loaded document dirty.
func (s *Session) Load(id string) bool {
	s.mu.Lock()
	target := s.docs.Get(id)
	if target == nil {
		s.mu.Unlock()
		return false
	}
	if s.current != nil && s.current.ID == id {
		s.mu.Unlock()
		return true
	}

	s.stopTimersLocked()
	if s.current != nil {
		s.docs.Put(s.current)
	}
	s.installLocked(target)
	surface := s.surface
	content := target.Content
	s.mu.Unlock()

	surface.Replace(content)
	s.cfg.Defer(s.releaseGuard)

	s.log.Debug("loaded document", "id", id)
	return true
}

// Forget drops a document from the known set. The current document cannot
// be forgotten; switch away first.
func (s *Session) Forget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.ID == id {
		return false
	}
	s.docs.Remove(id)
	return true
}

// installLocked makes doc current and resets session metadata. The guard
// goes up here; the caller commands the surface replacement after releasing
// s.mu and then defers releaseGuard. Caller holds s.mu.
func (s *Session) installLocked(doc *document.Document) {
	s.current = doc
	s.trackedID = doc.ID
	s.dirty = false
	s.status = StatusIdle
	s.lastSavedAt = doc.LastSavedAt
	s.editGen++
	s.suppress = true
}

// releaseGuard lowers the suppression flag. Scheduled through cfg.Defer so
// the surface's change notification for the replacement is already ignored
// by the time it runs. A release with no notification in between is a
// harmless no-op.
func (s *Session) releaseGuard() {
	s.mu.Lock()
	s.suppress = false
	s.mu.Unlock()
}

// stopTimersLocked cancels all pending debounce timers. A timer belonging
// to a retired document must never fire against the new current document.
// Caller holds s.mu.
func (s *Session) stopTimersLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	if s.previewTimer != nil {
		s.previewTimer.Stop()
		s.previewTimer = nil
	}
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

// Close stops all timers. It does not flush; hosts that want a final save
// call OnCloseRequested first.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
}
