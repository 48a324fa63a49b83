package session

import (
	"time"
)

// Preview scheduler. A second debounce timer, independent of autosave and
// with a shorter delay, so a slow gateway save never delays a preview
// refresh and vice versa. Derivation failures are logged and never touch
// dirty or save state.

// armPreviewLocked (re)starts the preview debounce timer. Caller holds s.mu.
func (s *Session) armPreviewLocked() {
	if s.pub == nil {
		return
	}
	if s.previewTimer != nil {
		s.previewTimer.Stop()
	}
	s.previewTimer = time.AfterFunc(s.cfg.PreviewDelay, s.previewFired)
}

// previewFired derives and publishes preview metadata for the current
// document. Runs on the timer goroutine.
func (s *Session) previewFired() {
	s.mu.Lock()
	if s.current == nil || s.pub == nil {
		s.mu.Unlock()
		return
	}
	snap := s.current.Snapshot()
	titles := s.docs.Titles()
	deriver := s.deriver
	pub := s.pub
	s.mu.Unlock()

	// Recompile the mention dictionary so renamed documents are matched by
	// their current titles.
	if err := deriver.CompileDictionary(titles); err != nil {
		s.log.Warn("preview dictionary compile failed", "error", err)
	}

	pub.PublishPreview(deriver.Derive(snap))
}

// RefreshPreview derives and publishes immediately, bypassing the debounce.
// Used by the host after Hydrate to populate list views.
func (s *Session) RefreshPreview() {
	s.previewFired()
}
