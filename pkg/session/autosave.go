package session

import (
	"context"
	"time"
)

// Autosave scheduler. One debounce timer, re-armed on every edit so only the
// last edit in a burst matters. Forced triggers (visibility hidden, before
// unload, close requested) bypass the timer. A flush captures the document's
// snapshot and the edit generation at start; completion side effects are
// scoped to that snapshot, never to whatever document is current when the
// gateway resolves.

// armAutosaveLocked (re)starts the debounce timer. Caller holds s.mu.
func (s *Session) armAutosaveLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.cfg.AutosaveDelay, s.autosaveFired)
}

// autosaveFired runs on the timer goroutine when the idle delay elapses.
func (s *Session) autosaveFired() {
	s.mu.Lock()
	fire := s.dirty && !s.flushing && s.current != nil
	s.mu.Unlock()
	if fire {
		s.flush(context.Background())
	}
}

// OnVisibilityHidden forces an immediate flush attempt (tab hidden).
func (s *Session) OnVisibilityHidden() {
	s.FlushNow(context.Background())
}

// OnBeforeUnload forces an immediate flush attempt and returns once it
// settles, so the host may allow the unload to proceed.
func (s *Session) OnBeforeUnload() {
	s.FlushNow(context.Background())
}

// OnCloseRequested flushes before the host closes the window. It blocks
// until the attempt settles or ctx expires; the host delays the actual
// close until this returns.
func (s *Session) OnCloseRequested(ctx context.Context) error {
	return s.FlushNow(ctx)
}

// FlushNow attempts an immediate flush if the document is dirty, bypassing
// the debounce timer. If a flush is already in flight the attempt coalesces
// onto it: FlushNow waits for the in-flight flush to settle, then re-checks.
// A document left dirty by the awaited flush (it failed, or an edit landed
// mid-flight) gets one attempt of its own, so a close-requested trigger
// never reports success with unsaved content. A clean document performs no
// gateway call.
func (s *Session) FlushNow(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.flushing {
			done := s.flushDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !s.dirty || s.current == nil {
			s.mu.Unlock()
			return nil
		}
		return s.flushLocked(ctx)
	}
}

// flush performs one save attempt unless one is already running. Timer path.
func (s *Session) flush(ctx context.Context) error {
	s.mu.Lock()
	if s.flushing || !s.dirty || s.current == nil {
		s.mu.Unlock()
		return nil
	}
	return s.flushLocked(ctx)
}

// flushLocked performs one save attempt. Called with s.mu held and no flush
// in flight; the lock is released around the gateway call. Deciding and
// claiming the flush under one lock acquisition keeps two concurrent forced
// triggers from both passing the dirty check.
func (s *Session) flushLocked(ctx context.Context) error {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.flushing = true
	s.flushDone = make(chan struct{})
	snap := s.current.Snapshot()
	gen := s.editGen
	s.status = StatusSaving
	s.mu.Unlock()

	err := s.gateway.SaveDocument(ctx, snap)
	now := time.Now().UnixMilli()

	s.mu.Lock()
	s.flushing = false
	close(s.flushDone)

	if err != nil {
		// The document stays dirty; the next edit or timer cycle retries.
		if s.current != nil && s.current.ID == snap.ID {
			s.status = StatusError
		}
		s.mu.Unlock()
		s.log.Warn("autosave failed", "id", snap.ID, "error", err)
		if s.cfg.Notify != nil {
			s.cfg.Notify("save:error", err.Error())
		}
		return err
	}

	// The saved document may have been retired mid-flight; its parked copy
	// still gets its save time recorded.
	if doc := s.docs.Get(snap.ID); doc != nil {
		doc.LastSavedAt = now
	}

	if s.current != nil && s.current.ID == snap.ID {
		s.current.LastSavedAt = now
		s.lastSavedAt = now
		if gen == s.editGen {
			s.dirty = false
			s.status = StatusSaved
			s.armStatusResetLocked()
		} else {
			// An edit landed during the flush; it is not saved yet.
			s.armAutosaveLocked()
		}
	}
	s.mu.Unlock()

	s.log.Debug("autosaved", "id", snap.ID, "words", snap.WordCount)
	return nil
}

// armStatusResetLocked schedules the cosmetic saved -> idle reset, skipped
// if a newer edit re-dirties the document first. Caller holds s.mu.
func (s *Session) armStatusResetLocked() {
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetTimer = time.AfterFunc(s.cfg.SavedResetDelay, func() {
		s.mu.Lock()
		if s.status == StatusSaved && !s.dirty {
			s.status = StatusIdle
		}
		s.mu.Unlock()
	})
}
