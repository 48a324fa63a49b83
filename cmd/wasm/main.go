//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"syscall/js"
	"time"

	"github.com/google/uuid"

	"github.com/stationhq/stationkit/internal/store"
	"github.com/stationhq/stationkit/pkg/document"
	"github.com/stationhq/stationkit/pkg/preview"
	"github.com/stationhq/stationkit/pkg/publish"
	"github.com/stationhq/stationkit/pkg/session"
)

// Version info
const Version = "0.3.0"

// Global state
var (
	sqlStore *store.SQLiteStore
	sess     *session.Session
	surface  = &jsSurface{}

	previewHandler js.Value // JS function receiving preview metadata JSON
	notifyHandler  js.Value // JS function receiving {event, message}
	publishHandler js.Value // JS function receiving publish outcome JSON

	platforms   = map[string]publish.Platform{}
	sched       *publish.Scheduler
	schedCancel context.CancelFunc
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	fmt.Println("[StationKit] WASM Ready v" + Version)

	js.Global().Set("StationKit", js.ValueOf(map[string]interface{}{
		"version":    js.FuncOf(getVersion),
		"initialize": js.FuncOf(initialize),
		// Surface wiring
		"setSurface":        js.FuncOf(setSurface),
		"setPreviewHandler": js.FuncOf(setPreviewHandler),
		"setNotifyHandler":  js.FuncOf(setNotifyHandler),
		// Editing session
		"editorChanged":   js.FuncOf(editorChanged),
		"setTitle":        js.FuncOf(setTitle),
		"newDocument":     js.FuncOf(newDocument),
		"loadDocument":    js.FuncOf(loadDocument),
		"deleteDocument":  js.FuncOf(deleteDocument),
		"currentDocument": js.FuncOf(currentDocument),
		"sessionState":    js.FuncOf(sessionState),
		"refreshPreview":  js.FuncOf(refreshPreview),
		// Flush triggers
		"flushNow":          js.FuncOf(flushNow),
		"visibilityHidden":  js.FuncOf(visibilityHidden),
		"beforeUnload":      js.FuncOf(beforeUnload),
		"closeRequested":    js.FuncOf(closeRequested),
		// Publishing
		"registerPlatform":    js.FuncOf(registerPlatform),
		"setPublishHandler":   js.FuncOf(setPublishHandler),
		"startScheduler":      js.FuncOf(startScheduler),
		"stopScheduler":       js.FuncOf(stopScheduler),
		"checkScheduledPosts": js.FuncOf(checkScheduledPosts),
		// Store API
		"listDocuments":  js.FuncOf(listDocuments),
		"listVersions":   js.FuncOf(listVersions),
		"setStatus":      js.FuncOf(setDocumentStatus),
		"schedulePost":   js.FuncOf(schedulePost),
		"recentActivity": js.FuncOf(recentActivity),
		"storeExport":    js.FuncOf(storeExport),
		"storeImport":    js.FuncOf(storeImport),
	}))

	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// =============================================================================
// Surface + gateway adapters
// =============================================================================

// jsSurface forwards programmatic content replacement to the JS editor.
type jsSurface struct {
	replace js.Value
}

func (s *jsSurface) Replace(content string) {
	if s.replace.Truthy() {
		s.replace.Invoke(content)
	}
}

// gateway adapts the SQLite store to the session's persistence interface.
type gateway struct {
	store *store.SQLiteStore
}

func (g *gateway) SaveDocument(ctx context.Context, snap document.Snapshot) error {
	return g.store.SaveDocument(&store.DocumentRecord{
		ID:          snap.ID,
		Title:       snap.Title,
		Content:     snap.Content,
		HTMLContent: snap.HTML,
		WordCount:   snap.WordCount,
		CharCount:   snap.CharCount,
		CreatedAt:   snap.CreatedAt,
		UpdatedAt:   snap.UpdatedAt,
	})
}

// =============================================================================
// Initialization
// =============================================================================

// initialize opens the in-memory store, creates the session, and hydrates
// known documents. Persistence across page loads goes through storeExport /
// storeImport (the host syncs the bytes to OPFS).
// Args: [configJSON string (optional)] - {autosaveDelayMs, previewDelayMs}
func initialize(this js.Value, args []js.Value) interface{} {
	st, err := store.NewSQLiteStore()
	if err != nil {
		return errorResult("store init: " + err.Error())
	}
	sqlStore = st

	cfg := session.DefaultConfig()
	if len(args) > 0 && args[0].String() != "" {
		var input struct {
			AutosaveDelayMs int `json:"autosaveDelayMs"`
			PreviewDelayMs  int `json:"previewDelayMs"`
		}
		if err := json.Unmarshal([]byte(args[0].String()), &input); err == nil {
			if input.AutosaveDelayMs > 0 {
				cfg.AutosaveDelay = time.Duration(input.AutosaveDelayMs) * time.Millisecond
			}
			if input.PreviewDelayMs > 0 {
				cfg.PreviewDelay = time.Duration(input.PreviewDelayMs) * time.Millisecond
			}
		}
	}

	// Guard release rides the microtask queue so the editor's change event
	// for a programmatic replacement has already fired (and been ignored).
	cfg.Defer = func(f func()) {
		var cb js.Func
		cb = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			f()
			cb.Release()
			return nil
		})
		js.Global().Call("queueMicrotask", cb)
	}
	cfg.Notify = func(event, message string) {
		if notifyHandler.Truthy() {
			notifyHandler.Invoke(event, message)
		}
	}

	sess = session.New(surface, &gateway{store: st}, cfg)
	sess.SetPreviewPublisher(preview.PublisherFunc(func(meta preview.Meta) {
		if previewHandler.Truthy() {
			bytes, _ := json.Marshal(meta)
			previewHandler.Invoke(string(bytes))
		}
	}))

	count := hydrateSession()
	fmt.Printf("[StationKit] Session ready, %d documents\n", count)
	return successResult(fmt.Sprintf("initialized with %d documents", count))
}

// hydrateSession loads all persisted documents into the session's known set.
func hydrateSession() int {
	metas, err := sqlStore.ListDocuments()
	if err != nil {
		return 0
	}
	docs := make([]*document.Document, 0, len(metas))
	for _, m := range metas {
		rec, err := sqlStore.GetDocument(m.ID)
		if err != nil || rec == nil {
			continue
		}
		docs = append(docs, &document.Document{
			ID:        rec.ID,
			Title:     rec.Title,
			Content:   rec.Content,
			HTML:      rec.HTMLContent,
			WordCount: rec.WordCount,
			CharCount: rec.CharCount,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return sess.Hydrate(docs)
}

// setSurface registers the JS callback used for programmatic content
// replacement. Args: [fn(content string)]
func setSurface(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("setSurface requires 1 arg: fn")
	}
	surface.replace = args[0]
	return successResult("surface set")
}

// setPreviewHandler registers the JS callback receiving preview metadata.
func setPreviewHandler(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("setPreviewHandler requires 1 arg: fn")
	}
	previewHandler = args[0]
	return successResult("preview handler set")
}

// setNotifyHandler registers the JS callback receiving user-visible events.
func setNotifyHandler(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("setNotifyHandler requires 1 arg: fn")
	}
	notifyHandler = args[0]
	return successResult("notify handler set")
}

// =============================================================================
// Editing session
// =============================================================================

// editorChanged: [content string, html string]
func editorChanged(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	if len(args) < 2 {
		return errorResult("editorChanged requires 2 args: content, html")
	}
	sess.EditorChanged(args[0].String(), args[1].String())
	return successResult("ok")
}

// setTitle: [title string]
func setTitle(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("setTitle requires 1 arg: title")
	}
	sess.SetTitle(args[0].String())
	return successResult("ok")
}

// newDocument creates and switches to a fresh document. Returns its id.
func newDocument(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	id := sess.CreateNew()
	result, _ := json.Marshal(map[string]interface{}{"id": id})
	return string(result)
}

// loadDocument: [id string]. Falls back to the store if the document is not
// in the session's known set yet.
func loadDocument(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("loadDocument requires 1 arg: id")
	}
	id := args[0].String()

	if !sess.Load(id) {
		rec, err := sqlStore.GetDocument(id)
		if err != nil || rec == nil {
			return errorResult("document not found: " + id)
		}
		sess.Docs().Put(&document.Document{
			ID:        rec.ID,
			Title:     rec.Title,
			Content:   rec.Content,
			HTML:      rec.HTMLContent,
			WordCount: rec.WordCount,
			CharCount: rec.CharCount,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
		if !sess.Load(id) {
			return errorResult("document not found: " + id)
		}
	}
	return successResult("loaded " + id)
}

// deleteDocument: [id string]. The current document cannot be deleted.
func deleteDocument(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("deleteDocument requires 1 arg: id")
	}
	id := args[0].String()
	if !sess.Forget(id) {
		return errorResult("cannot delete the open document")
	}
	if err := sqlStore.DeleteDocument(id); err != nil {
		return errorResult("delete: " + err.Error())
	}
	sqlStore.LogActivity("document.deleted", "document", id, "")
	return successResult("deleted " + id)
}

// currentDocument returns the current snapshot as JSON, or null.
func currentDocument(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	snap, ok := sess.Snapshot()
	if !ok {
		return "null"
	}
	result, _ := json.Marshal(map[string]interface{}{
		"id":             snap.ID,
		"title":          snap.Title,
		"content":        snap.Content,
		"htmlContent":    snap.HTML,
		"wordCount":      snap.WordCount,
		"characterCount": snap.CharCount,
		"createdAt":      snap.CreatedAt,
		"updatedAt":      snap.UpdatedAt,
	})
	return string(result)
}

// sessionState returns {isDirty, saveStatus, lastSavedAt}.
func sessionState(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	result, _ := json.Marshal(map[string]interface{}{
		"isDirty":     sess.IsDirty(),
		"saveStatus":  string(sess.SaveStatus()),
		"lastSavedAt": sess.LastSavedAt(),
	})
	return string(result)
}

// refreshPreview publishes preview metadata immediately.
func refreshPreview(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	sess.RefreshPreview()
	return successResult("ok")
}

// =============================================================================
// Flush triggers
// =============================================================================

// flushNow forces a save attempt. Returns: Promise<JSON>.
func flushNow(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	promise, resolve, reject := makePromise()
	go func() {
		if err := sess.FlushNow(context.Background()); err != nil {
			reject.Invoke(js.Global().Get("Error").New(err.Error()))
			return
		}
		resolve.Invoke(successResult("flushed"))
	}()
	return promise
}

// visibilityHidden is called when the tab goes hidden.
func visibilityHidden(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	sess.OnVisibilityHidden()
	return successResult("ok")
}

// beforeUnload is called synchronously from the beforeunload handler: the
// save lands in the in-memory database before the event returns, and the
// host is expected to export afterwards.
func beforeUnload(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	sess.OnBeforeUnload()
	return successResult("ok")
}

// closeRequested delays the actual window close until the flush settles.
// Args: [timeoutMs int (optional)]. Returns: Promise<JSON>.
func closeRequested(this js.Value, args []js.Value) interface{} {
	if sess == nil {
		return errorResult("not initialized")
	}
	timeout := 10 * time.Second
	if len(args) > 0 && args[0].Type() == js.TypeNumber {
		timeout = time.Duration(args[0].Int()) * time.Millisecond
	}

	promise, resolve, reject := makePromise()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := sess.OnCloseRequested(ctx); err != nil {
			reject.Invoke(js.Global().Get("Error").New(err.Error()))
			return
		}
		resolve.Invoke(successResult("flushed"))
	}()
	return promise
}

// =============================================================================
// Publishing
// =============================================================================

// jsPlatform adapts a host-side publisher callback to the Platform
// interface. The callback receives the request as JSON and returns
// {"url": ...} on success or {"error": ...} on failure; the actual HTTP
// integration (Ghost, Beehiiv, ...) lives in the host.
type jsPlatform struct {
	name string
	fn   js.Value
}

func (p *jsPlatform) Publish(ctx context.Context, req publish.Request) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"platform":      p.name,
		"title":         req.Title,
		"htmlContent":   req.HTMLContent,
		"accountId":     req.AccountID,
		"publicationId": req.PublicationID,
	})
	if err != nil {
		return "", err
	}
	res := p.fn.Invoke(string(payload))
	return publish.ParsePlatformResult(res.String())
}

// registerPlatform: [name string, fn(requestJSON) resultJSON]. Register all
// platforms before startScheduler.
func registerPlatform(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("registerPlatform requires 2 args: name, fn")
	}
	name := args[0].String()
	platforms[name] = &jsPlatform{name: name, fn: args[1]}
	return successResult("platform registered: " + name)
}

// setPublishHandler registers the JS callback receiving publish outcomes.
func setPublishHandler(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("setPublishHandler requires 1 arg: fn")
	}
	publishHandler = args[0]
	return successResult("publish handler set")
}

// newScheduler builds a scheduler over a snapshot of the registered
// platforms, outcomes forwarded to the publish handler.
func newScheduler() *publish.Scheduler {
	ps := make(map[string]publish.Platform, len(platforms))
	for name, p := range platforms {
		ps[name] = p
	}
	s := publish.New(sqlStore, ps, slog.Default())
	s.OnEvent(func(ev publish.Event) {
		if publishHandler.Truthy() {
			bytes, _ := json.Marshal(ev)
			publishHandler.Invoke(string(bytes))
		}
	})
	return s
}

// startScheduler runs the due-post check loop.
// Args: [intervalMs int (optional), startWaitMs int (optional)]
func startScheduler(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	if schedCancel != nil {
		schedCancel()
	}

	sched = newScheduler()
	if len(args) > 1 && args[0].Type() == js.TypeNumber && args[1].Type() == js.TypeNumber {
		sched.SetInterval(
			time.Duration(args[0].Int())*time.Millisecond,
			time.Duration(args[1].Int())*time.Millisecond,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	schedCancel = cancel
	sched.Start(ctx)
	return successResult("scheduler started")
}

// stopScheduler cancels the check loop.
func stopScheduler(this js.Value, args []js.Value) interface{} {
	if schedCancel != nil {
		schedCancel()
		schedCancel = nil
	}
	return successResult("scheduler stopped")
}

// checkScheduledPosts runs one due-post check immediately, independent of
// the loop. Returns: Promise<JSON>.
func checkScheduledPosts(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	s := sched
	if s == nil {
		s = newScheduler()
	}

	promise, resolve, reject := makePromise()
	go func() {
		if err := s.CheckAndPublish(context.Background()); err != nil {
			reject.Invoke(js.Global().Get("Error").New(err.Error()))
			return
		}
		resolve.Invoke(successResult("checked"))
	}()
	return promise
}

// =============================================================================
// Store API
// =============================================================================

// listDocuments returns all document metadata as JSON.
func listDocuments(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	metas, err := sqlStore.ListDocuments()
	if err != nil {
		return errorResult("list: " + err.Error())
	}
	bytes, _ := json.Marshal(metas)
	return string(bytes)
}

// listVersions: [id string] - returns save history for a document.
func listVersions(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("listVersions requires 1 arg: id")
	}
	versions, err := sqlStore.ListVersions(args[0].String())
	if err != nil {
		return errorResult("versions: " + err.Error())
	}
	bytes, _ := json.Marshal(versions)
	return string(bytes)
}

// setStatus: [id string, status string]
func setDocumentStatus(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	if len(args) < 2 {
		return errorResult("setStatus requires 2 args: id, status")
	}
	if err := sqlStore.SetStatus(args[0].String(), args[1].String()); err != nil {
		return errorResult("setStatus: " + err.Error())
	}
	return successResult("ok")
}

// schedulePost: [postJSON string] - {documentId, platform, accountId,
// publicationId?, title, scheduledAt}
func schedulePost(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("schedulePost requires 1 arg: postJSON")
	}
	var post store.ScheduledPost
	if err := json.Unmarshal([]byte(args[0].String()), &post); err != nil {
		return errorResult("invalid post json: " + err.Error())
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if err := sqlStore.AddScheduledPost(&post); err != nil {
		return errorResult("schedule: " + err.Error())
	}
	if err := sqlStore.SetStatus(post.DocumentID, store.StatusScheduled); err != nil {
		return errorResult("schedule status: " + err.Error())
	}
	result, _ := json.Marshal(map[string]interface{}{"id": post.ID})
	return string(result)
}

// recentActivity: [limit int (optional)]
func recentActivity(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	limit := 50
	if len(args) > 0 && args[0].Type() == js.TypeNumber {
		limit = args[0].Int()
	}
	entries, err := sqlStore.RecentActivity(limit)
	if err != nil {
		return errorResult("activity: " + err.Error())
	}
	bytes, _ := json.Marshal(entries)
	return string(bytes)
}

// storeExport serializes the database for OPFS sync.
// Returns: Uint8Array
func storeExport(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	data, err := sqlStore.Export()
	if err != nil {
		return errorResult("export: " + err.Error())
	}
	dst := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(dst, data)
	return dst
}

// storeImport restores the database from exported bytes and re-hydrates
// the session. Args: [data Uint8Array]
func storeImport(this js.Value, args []js.Value) interface{} {
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("storeImport requires 1 arg: data")
	}
	data := make([]byte, args[0].Get("length").Int())
	js.CopyBytesToGo(data, args[0])
	if err := sqlStore.Import(data); err != nil {
		return errorResult("import: " + err.Error())
	}
	count := hydrateSession()
	return successResult(fmt.Sprintf("imported %d documents", count))
}

// =============================================================================
// Helpers
// =============================================================================

// makePromise creates a JS Promise and returns it along with resolve/reject functions.
func makePromise() (promise js.Value, resolve js.Value, reject js.Value) {
	var resolveFn, rejectFn js.Value
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolveFn = args[0]
		rejectFn = args[1]
		return nil
	})
	defer handler.Release()

	promise = js.Global().Get("Promise").New(handler)
	return promise, resolveFn, rejectFn
}

// Helper: Create error result
func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// Helper: Create success result
func successResult(msg string) interface{} {
	result := map[string]interface{}{
		"success": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}
