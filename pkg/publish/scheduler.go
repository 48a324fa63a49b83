// Package publish runs the scheduled-post loop: periodically checks the
// store for due posts and hands them to the matching platform publisher.
// It is independent of the editing session; a publish failure never touches
// editor state beyond the post's own status row.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stationhq/stationkit/internal/store"
)

// Platform publishes a document to one external destination (Ghost,
// Substack, Beehiiv, Kit, ...).
type Platform interface {
	// Publish sends the post and returns the public URL.
	Publish(ctx context.Context, req Request) (url string, err error)
}

// Request is the payload handed to a platform.
type Request struct {
	Title         string
	HTMLContent   string
	AccountID     string
	PublicationID string
}

// ParsePlatformResult decodes the JSON a host-side platform adapter returns
// from a publish call: {"url": "..."} on success, {"error": "..."} on
// failure. Platform integrations live in the host; this is the wire half of
// that contract.
func ParsePlatformResult(raw string) (string, error) {
	var out struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("platform result: %w", err)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	if out.URL == "" {
		return "", errors.New("platform result missing url")
	}
	return out.URL, nil
}

// Event reports a post's outcome to the host UI.
type Event struct {
	PostID     string `json:"id"`
	DocumentID string `json:"documentId"`
	Platform   string `json:"platform"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Store is the persistence surface the scheduler needs.
type Store interface {
	DuePosts(now int64) ([]*store.ScheduledPost, error)
	GetDocument(id string) (*store.DocumentRecord, error)
	SetPostStatus(id, status, errorMessage string) error
	SetPostPublished(id, url string) error
	SetPublished(id string, url string, at int64) error
	LogActivity(action, entityType, entityID, details string)
}

// Scheduler checks for due posts on a fixed interval.
type Scheduler struct {
	store     Store
	platforms map[string]Platform
	interval  time.Duration
	startWait time.Duration
	log       *slog.Logger
	onEvent   func(Event)
}

// New creates a Scheduler. Platform implementations are registered by name.
func New(st Store, platforms map[string]Platform, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     st,
		platforms: platforms,
		interval:  30 * time.Second,
		startWait: 5 * time.Second,
		log:       logger.With("component", "publish"),
	}
}

// SetInterval overrides the check cadence (tests use short intervals).
func (s *Scheduler) SetInterval(interval, startWait time.Duration) {
	s.interval = interval
	s.startWait = startWait
}

// OnEvent installs the outcome callback.
func (s *Scheduler) OnEvent(fn func(Event)) {
	s.onEvent = fn
}

// Start runs the check loop until ctx is cancelled. The first check waits
// startWait so app startup isn't competing with a publish burst.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		select {
		case <-time.After(s.startWait):
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if err := s.CheckAndPublish(ctx); err != nil {
				s.log.Warn("scheduler check failed", "error", err)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CheckAndPublish processes every due post once.
func (s *Scheduler) CheckAndPublish(ctx context.Context) error {
	due, err := s.store.DuePosts(time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("list due posts: %w", err)
	}

	for _, post := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.publishOne(ctx, post)
	}
	return nil
}

func (s *Scheduler) publishOne(ctx context.Context, post *store.ScheduledPost) {
	if err := s.store.SetPostStatus(post.ID, store.PostPublishing, ""); err != nil {
		s.log.Warn("mark publishing failed", "post", post.ID, "error", err)
		return
	}

	doc, err := s.store.GetDocument(post.DocumentID)
	if err != nil || doc == nil || doc.HTMLContent == "" {
		s.fail(post, "document content is empty")
		return
	}

	platform, ok := s.platforms[post.Platform]
	if !ok {
		s.fail(post, "unsupported platform: "+post.Platform)
		return
	}

	url, err := platform.Publish(ctx, Request{
		Title:         post.Title,
		HTMLContent:   doc.HTMLContent,
		AccountID:     post.AccountID,
		PublicationID: post.PublicationID,
	})
	if err != nil {
		s.fail(post, err.Error())
		return
	}

	now := time.Now().UnixMilli()
	if err := s.store.SetPostPublished(post.ID, url); err != nil {
		s.log.Warn("mark published failed", "post", post.ID, "error", err)
	}
	if err := s.store.SetPublished(post.DocumentID, url, now); err != nil {
		s.log.Warn("mark document published failed", "document", post.DocumentID, "error", err)
	}
	s.store.LogActivity("post.published", "scheduled_post", post.ID,
		"published to "+post.Platform+" via scheduler")

	s.emit(Event{
		PostID:     post.ID,
		DocumentID: post.DocumentID,
		Platform:   post.Platform,
		Status:     store.PostPublished,
		Message:    "Published to " + post.Platform,
	})
}

func (s *Scheduler) fail(post *store.ScheduledPost, message string) {
	if err := s.store.SetPostStatus(post.ID, store.PostFailed, message); err != nil {
		s.log.Warn("mark post failed", "post", post.ID, "error", err)
	}
	s.emit(Event{
		PostID:     post.ID,
		DocumentID: post.DocumentID,
		Platform:   post.Platform,
		Status:     store.PostFailed,
		Message:    message,
	})
}

func (s *Scheduler) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}
