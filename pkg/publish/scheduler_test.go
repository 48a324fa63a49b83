package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stationhq/stationkit/internal/store"
)

type fakePlatform struct {
	url      string
	err      error
	requests []Request
}

func (p *fakePlatform) Publish(ctx context.Context, req Request) (string, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	return p.url, nil
}

func newStoreWithPost(t *testing.T, scheduledAt int64) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	now := time.Now().UnixMilli()
	rec := &store.DocumentRecord{
		ID:          "doc1",
		Title:       "Issue 12",
		Content:     `{"type":"doc"}`,
		HTMLContent: "<p>the issue body</p>",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := st.SaveDocument(rec); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	post := &store.ScheduledPost{
		ID:          "p1",
		DocumentID:  "doc1",
		Platform:    "beehiiv",
		AccountID:   "acct",
		Title:       "Issue 12",
		ScheduledAt: scheduledAt,
	}
	if err := st.AddScheduledPost(post); err != nil {
		t.Fatalf("AddScheduledPost failed: %v", err)
	}
	return st
}

func TestCheckAndPublishSuccess(t *testing.T) {
	st := newStoreWithPost(t, time.Now().UnixMilli()-1000)
	platform := &fakePlatform{url: "https://example.com/posts/12"}
	s := New(st, map[string]Platform{"beehiiv": platform}, nil)

	var events []Event
	s.OnEvent(func(ev Event) { events = append(events, ev) })

	if err := s.CheckAndPublish(context.Background()); err != nil {
		t.Fatalf("CheckAndPublish failed: %v", err)
	}

	if len(platform.requests) != 1 {
		t.Fatalf("Expected 1 publish call, got %d", len(platform.requests))
	}
	if platform.requests[0].HTMLContent != "<p>the issue body</p>" {
		t.Errorf("Publish payload mismatch: %+v", platform.requests[0])
	}

	doc, _ := st.GetDocument("doc1")
	if doc.Status != store.StatusPublished || doc.PublishedAt == 0 {
		t.Errorf("Document not marked published: %+v", doc)
	}

	due, _ := st.DuePosts(time.Now().UnixMilli())
	if len(due) != 0 {
		t.Errorf("Published post still reported due")
	}

	if len(events) != 1 || events[0].Status != store.PostPublished {
		t.Errorf("Events = %+v", events)
	}

	// A second pass finds nothing; publishing is not repeated.
	if err := s.CheckAndPublish(context.Background()); err != nil {
		t.Fatalf("Second CheckAndPublish failed: %v", err)
	}
	if len(platform.requests) != 1 {
		t.Errorf("Post published twice")
	}
}

func TestCheckAndPublishSkipsFuturePosts(t *testing.T) {
	st := newStoreWithPost(t, time.Now().UnixMilli()+60_000)
	platform := &fakePlatform{url: "https://example.com/x"}
	s := New(st, map[string]Platform{"beehiiv": platform}, nil)

	if err := s.CheckAndPublish(context.Background()); err != nil {
		t.Fatalf("CheckAndPublish failed: %v", err)
	}
	if len(platform.requests) != 0 {
		t.Errorf("Future post published early")
	}
}

func TestCheckAndPublishPlatformError(t *testing.T) {
	st := newStoreWithPost(t, time.Now().UnixMilli()-1000)
	platform := &fakePlatform{err: errors.New("api rejected the post")}
	s := New(st, map[string]Platform{"beehiiv": platform}, nil)

	var events []Event
	s.OnEvent(func(ev Event) { events = append(events, ev) })

	if err := s.CheckAndPublish(context.Background()); err != nil {
		t.Fatalf("CheckAndPublish failed: %v", err)
	}

	if len(events) != 1 || events[0].Status != store.PostFailed {
		t.Fatalf("Expected failure event, got %+v", events)
	}
	if events[0].Message != "api rejected the post" {
		t.Errorf("Event message = %q", events[0].Message)
	}

	doc, _ := st.GetDocument("doc1")
	if doc.Status == store.StatusPublished {
		t.Errorf("Document marked published despite failure")
	}
}

func TestCheckAndPublishUnknownPlatform(t *testing.T) {
	st := newStoreWithPost(t, time.Now().UnixMilli()-1000)
	s := New(st, map[string]Platform{}, nil)

	var events []Event
	s.OnEvent(func(ev Event) { events = append(events, ev) })

	if err := s.CheckAndPublish(context.Background()); err != nil {
		t.Fatalf("CheckAndPublish failed: %v", err)
	}
	if len(events) != 1 || events[0].Status != store.PostFailed {
		t.Errorf("Expected failure event for unknown platform, got %+v", events)
	}
}

func TestParsePlatformResult(t *testing.T) {
	url, err := ParsePlatformResult(`{"url":"https://example.com/p/1"}`)
	if err != nil || url != "https://example.com/p/1" {
		t.Errorf("ParsePlatformResult = %q, %v", url, err)
	}

	if _, err := ParsePlatformResult(`{"error":"rate limited"}`); err == nil || err.Error() != "rate limited" {
		t.Errorf("Expected the adapter's error, got %v", err)
	}

	if _, err := ParsePlatformResult(`{}`); err == nil {
		t.Errorf("Expected error for missing url")
	}

	if _, err := ParsePlatformResult(`not json`); err == nil {
		t.Errorf("Expected error for malformed result")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	st := newStoreWithPost(t, time.Now().UnixMilli()-1000)
	platform := &fakePlatform{url: "https://example.com/x"}
	s := New(st, map[string]Platform{"beehiiv": platform}, nil)
	s.SetInterval(10*time.Millisecond, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.After(time.Second)
	for {
		due, _ := st.DuePosts(time.Now().UnixMilli())
		if len(due) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Scheduler never published the due post")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
}
