package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/stationkit/pkg/document"
)

// fakeSurface records Replace calls. With echo set it synchronously fires
// the change notification a real editor emits when its content is replaced
// programmatically.
type fakeSurface struct {
	mu       sync.Mutex
	sess     *Session
	echo     bool
	replaced []string
}

func (s *fakeSurface) Replace(content string) {
	s.mu.Lock()
	s.replaced = append(s.replaced, content)
	echo := s.echo
	sess := s.sess
	s.mu.Unlock()

	if echo && sess != nil {
		sess.EditorChanged(content, content)
	}
}

func (s *fakeSurface) replacedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replaced)
}

// fakeGateway records saves. A non-nil block channel stalls SaveDocument
// until the channel closes, simulating a slow backend.
type fakeGateway struct {
	mu    sync.Mutex
	saves []document.Snapshot
	block chan struct{}
	err   error
}

func (g *fakeGateway) SaveDocument(ctx context.Context, snap document.Snapshot) error {
	g.mu.Lock()
	block := g.block
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.saves = append(g.saves, snap)
	return nil
}

func (g *fakeGateway) saveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saves)
}

func (g *fakeGateway) lastSave() document.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves[len(g.saves)-1]
}

func newTestSession(t *testing.T) (*Session, *fakeSurface, *fakeGateway) {
	t.Helper()
	surface := &fakeSurface{echo: true}
	gw := &fakeGateway{}
	cfg := DefaultConfig()
	cfg.AutosaveDelay = 30 * time.Millisecond
	cfg.PreviewDelay = 10 * time.Millisecond
	cfg.SavedResetDelay = 20 * time.Millisecond
	s := New(surface, gw, cfg)
	surface.sess = s
	t.Cleanup(s.Close)
	return s, surface, gw
}

func TestCreateNewStartsClean(t *testing.T) {
	s, surface, _ := newTestSession(t)

	id := s.CreateNew()
	require.NotEmpty(t, id)
	assert.False(t, s.IsDirty(), "fresh document must start clean despite the surface's change echo")
	assert.Equal(t, StatusIdle, s.SaveStatus())
	assert.Equal(t, 1, surface.replacedCount())
}

func TestEditMarksDirtyAndCounts(t *testing.T) {
	s, _, _ := newTestSession(t)
	s.CreateNew()

	s.EditorChanged(`{"type":"doc"}`, "<p>three little words</p>")

	require.True(t, s.IsDirty())
	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 3, snap.WordCount)
	assert.Equal(t, `{"type":"doc"}`, snap.Content)
}

func TestDebounceSavesOnceWithLastEdit(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()

	for i := 0; i < 5; i++ {
		s.EditorChanged("draft", "<p>edit</p>")
		time.Sleep(5 * time.Millisecond)
	}
	s.EditorChanged("final", "<p>final words here</p>")

	require.Eventually(t, func() bool { return gw.saveCount() == 1 },
		time.Second, 5*time.Millisecond, "exactly one save after the idle period")
	assert.Equal(t, "final", gw.lastSave().Content)
	assert.False(t, s.IsDirty())

	// No further saves without further edits.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, gw.saveCount())
}

func TestSavedStatusResetsToIdle(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()
	s.EditorChanged("x", "<p>x</p>")

	require.Eventually(t, func() bool { return gw.saveCount() == 1 },
		time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.SaveStatus() == StatusIdle },
		time.Second, 5*time.Millisecond, "cosmetic saved status resets to idle")
	assert.NotZero(t, s.LastSavedAt())
}

func TestLoadSuppressesSelfInflictedChange(t *testing.T) {
	s, _, _ := newTestSession(t)
	a := s.CreateNew()
	s.SetTitle("Doc A")
	s.EditorChanged("content-a", "<p>alpha</p>")
	b := s.CreateNew()
	s.EditorChanged("content-b", "<p>beta</p>")
	require.True(t, s.Load(a))

	// The surface echoed content-a's replacement; the guard must have
	// swallowed it.
	assert.False(t, s.IsDirty())
	assert.Equal(t, a, s.CurrentID())

	snap, _ := s.Snapshot()
	assert.Equal(t, "content-a", snap.Content)

	// B is parked with its latest edit intact.
	parked := s.Docs().Get(b)
	require.NotNil(t, parked)
	assert.Equal(t, "content-b", parked.Content)
}

func TestLoadUnknownIDFailsSilently(t *testing.T) {
	s, _, _ := newTestSession(t)
	a := s.CreateNew()
	s.EditorChanged("keep", "<p>keep</p>")

	require.False(t, s.Load("nope"))
	assert.Equal(t, a, s.CurrentID())
	assert.True(t, s.IsDirty(), "failed load must not mutate session state")
}

func TestCreateNewPreservesPreviousDocument(t *testing.T) {
	s, _, _ := newTestSession(t)
	a := s.CreateNew()
	s.SetTitle("Draft A")
	s.EditorChanged("body-a", "<p>body</p>")

	b := s.CreateNew()
	require.NotEqual(t, a, b)
	assert.False(t, s.IsDirty())

	prev := s.Docs().Get(a)
	require.NotNil(t, prev, "previous document stays in the known set")
	assert.Equal(t, "Draft A", prev.Title)
	assert.Equal(t, "body-a", prev.Content)
}

func TestForcedFlushSkipsCleanDocument(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()

	s.OnVisibilityHidden()
	s.OnBeforeUnload()
	require.NoError(t, s.OnCloseRequested(context.Background()))

	assert.Equal(t, 0, gw.saveCount(), "clean document performs no gateway call")
}

func TestForcedFlushBypassesDebounce(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()
	s.SetTitle("Draft A")

	s.OnVisibilityHidden()

	require.Equal(t, 1, gw.saveCount())
	assert.Equal(t, "Draft A", gw.lastSave().Title)
	assert.False(t, s.IsDirty())
}

func TestSwitchDuringFlushScopesSideEffects(t *testing.T) {
	s, _, gw := newTestSession(t)
	b := s.CreateNew()
	s.SetTitle("Doc B")
	s.EditorChanged("content-b", "<p>beta</p>")
	s.OnVisibilityHidden() // park B saved
	a := s.CreateNew()
	s.SetTitle("Draft A")

	// Stall the gateway, start the flush of A, then switch to B while the
	// save is still in flight.
	release := make(chan struct{})
	gw.mu.Lock()
	gw.block = release
	gw.mu.Unlock()

	flushed := make(chan error, 1)
	go func() { flushed <- s.FlushNow(context.Background()) }()

	require.Eventually(t, func() bool { return s.SaveStatus() == StatusSaving },
		time.Second, time.Millisecond)
	require.True(t, s.Load(b))
	require.False(t, s.IsDirty())

	close(release)
	require.NoError(t, <-flushed)

	// A's save resolved after the switch: A's parked copy records the save,
	// B's session state is untouched.
	require.Equal(t, 2, gw.saveCount())
	assert.Equal(t, a, gw.lastSave().ID)
	assert.Equal(t, "Draft A", gw.lastSave().Title)

	parkedA := s.Docs().Get(a)
	require.NotNil(t, parkedA)
	assert.NotZero(t, parkedA.LastSavedAt, "retired document records its save time")

	assert.False(t, s.IsDirty(), "old save must not touch the new document's dirty flag")
	assert.Equal(t, b, s.CurrentID())
	assert.NotEqual(t, StatusSaved, s.SaveStatus(), "saved status belongs to the retired document")
}

func TestEditDuringFlushStaysDirty(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()
	s.SetTitle("v1")

	release := make(chan struct{})
	gw.mu.Lock()
	gw.block = release
	gw.mu.Unlock()

	flushed := make(chan error, 1)
	go func() { flushed <- s.FlushNow(context.Background()) }()
	require.Eventually(t, func() bool { return s.SaveStatus() == StatusSaving },
		time.Second, time.Millisecond)

	s.SetTitle("v2") // lands mid-flight

	close(release)
	require.NoError(t, <-flushed)

	assert.True(t, s.IsDirty(), "the mid-flight edit is not saved yet")
	require.Eventually(t, func() bool { return gw.saveCount() == 2 },
		time.Second, 5*time.Millisecond, "the re-armed timer picks the edit up")
	assert.Equal(t, "v2", gw.lastSave().Title)
}

func TestOverlappingForcedTriggersCoalesce(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()
	s.SetTitle("once")

	release := make(chan struct{})
	gw.mu.Lock()
	gw.block = release
	gw.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.FlushNow(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return s.SaveStatus() == StatusSaving },
		time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, gw.saveCount(), "concurrent forced triggers coalesce onto one flush")
}

func TestCoalescedFlushRetriesAfterFailedFlight(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()
	s.SetTitle("doomed")

	release := make(chan struct{})
	gw.mu.Lock()
	gw.block = release
	gw.err = errors.New("backend unavailable")
	gw.mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- s.FlushNow(context.Background()) }()
	require.Eventually(t, func() bool { return s.SaveStatus() == StatusSaving },
		time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- s.FlushNow(context.Background()) }()

	close(release)
	require.Error(t, <-first)
	// The coalesced trigger must not report success for a failed flight;
	// its own attempt fails against the still-broken backend.
	require.Error(t, <-second)
	assert.True(t, s.IsDirty())
	assert.Equal(t, 0, gw.saveCount())
}

func TestCoalescedFlushPicksUpMidFlightEdit(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()
	s.SetTitle("v1")

	release := make(chan struct{})
	gw.mu.Lock()
	gw.block = release
	gw.mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- s.FlushNow(context.Background()) }()
	require.Eventually(t, func() bool { return s.SaveStatus() == StatusSaving },
		time.Second, time.Millisecond)

	s.SetTitle("v2") // lands while the first flush is in flight

	second := make(chan error, 1)
	go func() { second <- s.FlushNow(context.Background()) }()

	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	// The coalesced trigger saw the document still dirty after the awaited
	// flush and flushed the newer edit itself.
	assert.False(t, s.IsDirty())
	require.Equal(t, 2, gw.saveCount())
	assert.Equal(t, "v2", gw.lastSave().Title)
}

func TestGatewayErrorSurfacesAndRetriesNaturally(t *testing.T) {
	surface := &fakeSurface{echo: true}
	gw := &fakeGateway{err: errors.New("backend unavailable")}
	var notified []string
	cfg := DefaultConfig()
	cfg.AutosaveDelay = 30 * time.Millisecond
	cfg.Notify = func(event, message string) { notified = append(notified, event) }
	s := New(surface, gw, cfg)
	surface.sess = s
	t.Cleanup(s.Close)

	s.CreateNew()
	s.SetTitle("doomed")
	require.Error(t, s.FlushNow(context.Background()))

	assert.Equal(t, StatusError, s.SaveStatus())
	assert.True(t, s.IsDirty(), "document stays dirty after a failed save")
	assert.Equal(t, []string{"save:error"}, notified)

	// Backend recovers; the next forced trigger succeeds.
	gw.mu.Lock()
	gw.err = nil
	gw.mu.Unlock()
	require.NoError(t, s.FlushNow(context.Background()))
	assert.False(t, s.IsDirty())
	assert.Equal(t, 1, gw.saveCount())
}

func TestCloseRequestedHonorsContext(t *testing.T) {
	s, _, gw := newTestSession(t)
	s.CreateNew()
	s.SetTitle("stuck")

	gw.mu.Lock()
	gw.block = make(chan struct{}) // never released
	gw.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.OnCloseRequested(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetTitleWhileSuppressedIsIgnored(t *testing.T) {
	s, _, _ := newTestSession(t)
	surface := &titleEchoSurface{sess: s}
	s.surface = surface

	s.CreateNew()
	assert.False(t, s.IsDirty())
}

// titleEchoSurface fires a title change during programmatic replacement, as
// an editor restoring a document header would.
type titleEchoSurface struct {
	sess *Session
}

func (s *titleEchoSurface) Replace(content string) {
	s.sess.SetTitle("echoed")
	s.sess.EditorChanged(content, content)
}
