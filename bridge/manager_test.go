package bridge

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/reader"
	"github.com/wippyai/reader-bridge/reader/memory"
	"github.com/wippyai/reader-bridge/runloop"
	"github.com/wippyai/reader-bridge/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type notification struct {
	args    readerbridge.Value
	method  string
	isolate readerbridge.IsolateID
}

// recorder is an Invoker that remembers every notification.
type recorder struct {
	err   error
	sent  chan notification
	calls []notification
	mu    sync.Mutex
}

func newRecorder() *recorder {
	return &recorder{sent: make(chan notification, 64)}
}

func (r *recorder) CallMethod(_ context.Context, isolate readerbridge.IsolateID, method string, args readerbridge.Value) error {
	n := notification{isolate: isolate, method: method, args: args}
	r.mu.Lock()
	r.calls = append(r.calls, n)
	err := r.err
	r.mu.Unlock()
	select {
	case r.sent <- n:
	default:
	}
	return err
}

func (r *recorder) byMethod(method string) []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification
	for _, n := range r.calls {
		if n.method == method {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, method string) notification {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case n := <-r.sent:
			if n.method == method {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", method)
		}
	}
}

func textReader() *memory.Reader {
	return memory.New(
		memory.Item{Name: "note.txt", Formats: []memory.Format{
			{Name: "text/plain", Data: []byte("hello"), Virtual: true},
			{Name: "text/html", Data: []byte("<b>hello</b>"), Synthesized: true},
		}},
		memory.Item{Formats: []memory.Format{{Name: "text/plain", Data: []byte("anon")}}},
	)
}

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m := New(opts...)
	t.Cleanup(func() { m.Close() })
	return m
}

func call(t *testing.T, m *Manager, isolate readerbridge.IsolateID, method string, args readerbridge.Value) (readerbridge.Value, error) {
	t.Helper()
	return m.OnMethodCall(context.Background(), wire.MethodCall{Isolate: isolate, Method: method, Args: args})
}

func itemArgs(h int64, item int64) map[string]readerbridge.Value {
	return map[string]readerbridge.Value{"readerHandle": h, "itemHandle": item}
}

func formatArgs(h int64, item int64, format string) map[string]readerbridge.Value {
	a := itemArgs(h, item)
	a["format"] = format
	return a
}

func syncLoop(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestManager_Namespace(t *testing.T) {
	m := newManager(t)
	if m.Namespace() != "DataReaderManager" {
		t.Fatalf("Namespace() = %q", m.Namespace())
	}
}

func TestManager_RegisterUniqueHandles(t *testing.T) {
	m := newManager(t)
	isolate := readerbridge.NewIsolateID()
	ctx := context.Background()

	var prev int64
	for i := 0; i < 10; i++ {
		reg, err := m.RegisterPlatformReader(ctx, textReader(), isolate)
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		h := int64(reg.Handle)
		if h <= prev {
			t.Fatalf("handle %d not greater than %d", h, prev)
		}
		prev = h
		if reg.FinalizableHandle.Handle() != reg.Handle || reg.FinalizableHandle.Isolate() != isolate {
			t.Fatal("token bound to the wrong reader")
		}
		if reg.FinalizableHandle.EstimatedSize() != 32 {
			t.Fatalf("token size = %d", reg.FinalizableHandle.EstimatedSize())
		}
		v := reg.ToValue().(map[string]readerbridge.Value)
		if v["handle"] != h || v["finalizableHandle"] != reg.FinalizableHandle {
			t.Fatalf("wire value = %v", v)
		}
	}
}

func TestManager_QueryMethods(t *testing.T) {
	m := newManager(t)
	isolate := readerbridge.NewIsolateID()
	reg, _ := m.RegisterPlatformReader(context.Background(), textReader(), isolate)
	h := int64(reg.Handle)

	items, err := call(t, m, isolate, wire.MethodGetItems, h)
	if err != nil {
		t.Fatalf("getItems: %v", err)
	}
	if got := items.([]reader.ItemHandle); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("items = %v", got)
	}

	formats, err := call(t, m, isolate, wire.MethodGetItemFormats, itemArgs(h, 1))
	if err != nil {
		t.Fatalf("getItemFormats: %v", err)
	}
	if got := formats.([]string); len(got) != 2 || got[1] != "text/html" {
		t.Fatalf("formats = %v", got)
	}

	synth, err := call(t, m, isolate, "itemFormatIsSynthetized", formatArgs(h, 1, "text/html"))
	if err != nil || synth != true {
		t.Fatalf("itemFormatIsSynthetized = %v, %v", synth, err)
	}

	name, err := call(t, m, isolate, wire.MethodGetItemSuggestedName, itemArgs(h, 1))
	if err != nil || name != "note.txt" {
		t.Fatalf("getItemSuggestedName = %v, %v", name, err)
	}
	name, err = call(t, m, isolate, wire.MethodGetItemSuggestedName, itemArgs(h, 2))
	if err != nil || name != nil {
		t.Fatalf("unnamed item = %#v, %v", name, err)
	}

	ok, err := call(t, m, isolate, wire.MethodCanGetVirtualFile, formatArgs(h, 1, "text/plain"))
	if err != nil || ok != true {
		t.Fatalf("canGetVirtualFile = %v, %v", ok, err)
	}

	dir := t.TempDir()
	args := formatArgs(h, 1, "text/plain")
	args["progressId"] = int64(1)
	args["targetFolder"] = dir
	path, err := call(t, m, isolate, wire.MethodGetVirtualFile, args)
	if err != nil {
		t.Fatalf("getVirtualFile: %v", err)
	}
	if p, _ := path.(string); p == "" {
		t.Fatalf("path = %v", path)
	}
}

func TestManager_GetAfterDispose(t *testing.T) {
	m := newManager(t)
	isolate := readerbridge.NewIsolateID()
	reg, _ := m.RegisterPlatformReader(context.Background(), textReader(), isolate)
	h := int64(reg.Handle)

	if _, err := call(t, m, isolate, wire.MethodDisposeReader, h); err != nil {
		t.Fatalf("disposeReader: %v", err)
	}
	if _, err := call(t, m, isolate, wire.MethodDisposeReader, h); err != nil {
		t.Fatalf("second disposeReader should be a no-op: %v", err)
	}

	_, err := call(t, m, isolate, wire.MethodGetItems, h)
	if !stderrors.Is(err, errors.ErrReaderNotFound) {
		t.Fatalf("Expected reader_not_found, got %v", err)
	}
	if _, err := m.Reader(context.Background(), h); !stderrors.Is(err, errors.ErrReaderNotFound) {
		t.Fatalf("Reader after dispose = %v", err)
	}
}

func TestManager_DisposeThenFinalize(t *testing.T) {
	m := newManager(t)
	r := textReader()
	reg, _ := m.RegisterPlatformReader(context.Background(), r, readerbridge.NewIsolateID())

	call(t, m, reg.FinalizableHandle.Isolate(), wire.MethodDisposeReader, int64(reg.Handle))
	reg.FinalizableHandle.Finalize()
	syncLoop(t, m)

	if r.Closes() != 1 {
		t.Fatalf("reader closed %d times", r.Closes())
	}
}

func TestManager_FinalizeThenDispose(t *testing.T) {
	m := newManager(t)
	r := textReader()
	isolate := readerbridge.NewIsolateID()
	reg, _ := m.RegisterPlatformReader(context.Background(), r, isolate)

	reg.FinalizableHandle.Finalize()
	syncLoop(t, m)

	if _, err := call(t, m, isolate, wire.MethodGetItems, int64(reg.Handle)); !stderrors.Is(err, errors.ErrReaderNotFound) {
		t.Fatalf("finalized reader still reachable: %v", err)
	}
	call(t, m, isolate, wire.MethodDisposeReader, int64(reg.Handle))
	reg.FinalizableHandle.Finalize()
	syncLoop(t, m)

	if r.Closes() != 1 {
		t.Fatalf("reader closed %d times", r.Closes())
	}
}

func TestManager_UnknownMethod(t *testing.T) {
	m := newManager(t)
	isolate := readerbridge.NewIsolateID()
	reg, _ := m.RegisterPlatformReader(context.Background(), textReader(), isolate)

	result, err := call(t, m, isolate, "doStuff", nil)
	if result != nil {
		t.Fatalf("unexpected result %v", result)
	}
	ce := wire.NewCallError(err)
	if ce == nil || ce.Code != "invalid_method" || ce.Message != "Unknown Method: doStuff" {
		t.Fatalf("call error = %+v", ce)
	}

	if _, err := call(t, m, isolate, wire.MethodGetItems, int64(reg.Handle)); err != nil {
		t.Fatalf("unknown method changed state: %v", err)
	}
}

func TestManager_InvalidArgs(t *testing.T) {
	m := newManager(t)
	isolate := readerbridge.NewIsolateID()
	reg, _ := m.RegisterPlatformReader(context.Background(), textReader(), isolate)

	_, err := call(t, m, isolate, wire.MethodGetItemFormats, map[string]readerbridge.Value{"readerHandle": int64(reg.Handle)})
	if wire.NewCallError(err).Code != "invalid_args" {
		t.Fatalf("Expected invalid_args, got %v", err)
	}
}

func TestManager_ReaderErrorsPassThrough(t *testing.T) {
	m := newManager(t)
	isolate := readerbridge.NewIsolateID()
	boom := stderrors.New("device unplugged")
	r := textReader().WithReadHook(func(context.Context, reader.ItemHandle, string, reader.Progress) error {
		return boom
	})
	reg, _ := m.RegisterPlatformReader(context.Background(), r, isolate)

	args := formatArgs(int64(reg.Handle), 1, "text/plain")
	args["progressId"] = int64(3)
	_, err := call(t, m, isolate, wire.MethodGetItemData, args)
	if err != boom {
		t.Fatalf("Expected reader error verbatim, got %v", err)
	}
	if wire.NewCallError(err).Code != errors.CodeReaderError {
		t.Fatalf("code = %s", wire.NewCallError(err).Code)
	}
}

func TestManager_ItemDataProgress(t *testing.T) {
	rec := newRecorder()
	m := newManager(t, WithInvoker(rec))
	isolate := readerbridge.NewIsolateID()

	r := textReader().WithReadHook(func(_ context.Context, _ reader.ItemHandle, _ string, p reader.Progress) error {
		p.ReportProgress(0.5)
		return nil
	})
	reg, _ := m.RegisterPlatformReader(context.Background(), r, isolate)

	args := formatArgs(int64(reg.Handle), 1, "text/plain")
	args["progressId"] = int64(42)
	data, err := call(t, m, isolate, wire.MethodGetItemData, args)
	if err != nil {
		t.Fatalf("getItemData: %v", err)
	}
	if string(data.([]byte)) != "hello" {
		t.Fatalf("data = %q", data)
	}
	syncLoop(t, m)

	updates := rec.byMethod(wire.MethodUpdateProgress)
	if len(updates) != 1 {
		t.Fatalf("Expected exactly one updateProgress, got %d", len(updates))
	}
	u, err := wire.DecodeProgressUpdate(updates[0].args)
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if u.ProgressID != 42 || u.Fraction == nil || *u.Fraction != 0.5 {
		t.Fatalf("update = %+v", u)
	}
	if updates[0].isolate != isolate {
		t.Fatal("update sent to the wrong isolate")
	}
	if len(rec.byMethod(wire.MethodSetProgressCancellable)) != 0 {
		t.Fatal("no cancellation handler was installed")
	}

	// The id is gone once the request has finished.
	if _, err := call(t, m, isolate, wire.MethodCancelProgress, int64(42)); err != nil {
		t.Fatalf("cancelProgress after completion: %v", err)
	}
}

func TestManager_VirtualFileCancel(t *testing.T) {
	rec := newRecorder()
	m := newManager(t, WithInvoker(rec))
	isolate := readerbridge.NewIsolateID()

	var fired int
	var firedMu sync.Mutex
	r := textReader().WithReadHook(func(ctx context.Context, _ reader.ItemHandle, _ string, p reader.Progress) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		p.SetCancellationHandler(func() {
			firedMu.Lock()
			fired++
			firedMu.Unlock()
			cancel()
		})
		<-ctx.Done()
		return reader.ErrCanceled
	})
	reg, _ := m.RegisterPlatformReader(context.Background(), r, isolate)

	args := formatArgs(int64(reg.Handle), 1, "text/plain")
	args["progressId"] = int64(7)
	args["targetFolder"] = t.TempDir()

	done := make(chan error, 1)
	go func() {
		_, err := call(t, m, isolate, wire.MethodGetVirtualFile, args)
		done <- err
	}()

	n := rec.waitFor(t, wire.MethodSetProgressCancellable)
	sc, err := wire.DecodeSetProgressCancellable(n.args)
	if err != nil || sc.ProgressID != 7 || !sc.Cancellable {
		t.Fatalf("setProgressCancellable = %+v, %v", sc, err)
	}

	if _, err := call(t, m, isolate, wire.MethodCancelProgress, int64(7)); err != nil {
		t.Fatalf("cancelProgress: %v", err)
	}

	select {
	case err := <-done:
		if !stderrors.Is(err, reader.ErrCanceled) {
			t.Fatalf("Expected canceled read, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("read did not stop after cancelProgress")
	}

	call(t, m, isolate, wire.MethodCancelProgress, int64(7))
	firedMu.Lock()
	defer firedMu.Unlock()
	if fired != 1 {
		t.Fatalf("cancellation handler fired %d times", fired)
	}
}

func TestManager_CancelUnknownProgress(t *testing.T) {
	m := newManager(t)
	isolate := readerbridge.NewIsolateID()
	if _, err := call(t, m, isolate, wire.MethodCancelProgress, int64(999)); err != nil {
		t.Fatalf("cancelProgress for unknown id: %v", err)
	}
}

func TestManager_CancelIsScopedToIsolate(t *testing.T) {
	rec := newRecorder()
	m := newManager(t, WithInvoker(rec))
	owner := readerbridge.NewIsolateID()
	other := readerbridge.NewIsolateID()

	release := make(chan struct{})
	canceled := make(chan struct{}, 1)
	r := textReader().WithReadHook(func(_ context.Context, _ reader.ItemHandle, _ string, p reader.Progress) error {
		p.SetCancellationHandler(func() { canceled <- struct{}{} })
		<-release
		return nil
	})
	reg, _ := m.RegisterPlatformReader(context.Background(), r, owner)

	args := formatArgs(int64(reg.Handle), 1, "text/plain")
	args["progressId"] = int64(5)
	done := make(chan error, 1)
	go func() {
		_, err := call(t, m, owner, wire.MethodGetItemData, args)
		done <- err
	}()
	rec.waitFor(t, wire.MethodSetProgressCancellable)

	call(t, m, other, wire.MethodCancelProgress, int64(5))
	syncLoop(t, m)
	select {
	case <-canceled:
		t.Fatal("another isolate canceled the operation")
	default:
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("getItemData: %v", err)
	}
}

func TestManager_DisposeDuringRead(t *testing.T) {
	m := newManager(t)
	isolate := readerbridge.NewIsolateID()

	started := make(chan struct{})
	release := make(chan struct{})
	r := textReader().WithReadHook(func(context.Context, reader.ItemHandle, string, reader.Progress) error {
		close(started)
		<-release
		return nil
	})
	reg, _ := m.RegisterPlatformReader(context.Background(), r, isolate)
	h := int64(reg.Handle)

	args := formatArgs(h, 1, "text/plain")
	args["progressId"] = int64(1)
	done := make(chan error, 1)
	go func() {
		_, err := call(t, m, isolate, wire.MethodGetItemData, args)
		done <- err
	}()
	<-started

	call(t, m, isolate, wire.MethodDisposeReader, h)
	if r.Closes() != 0 {
		t.Fatal("reader closed under a running request")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight read failed after dispose: %v", err)
	}
	if r.Closes() != 1 {
		t.Fatalf("reader closed %d times", r.Closes())
	}
}

func TestManager_DisposeIsolate(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	gone := readerbridge.NewIsolateID()
	kept := readerbridge.NewIsolateID()

	r1, r2, r3 := textReader(), textReader(), textReader()
	m.RegisterPlatformReader(ctx, r1, gone)
	keptReg, _ := m.RegisterPlatformReader(ctx, r2, kept)
	m.RegisterPlatformReader(ctx, r3, gone)

	n, err := m.DisposeIsolate(ctx, gone)
	if err != nil || n != 2 {
		t.Fatalf("DisposeIsolate = %d, %v", n, err)
	}
	if r1.Closes() != 1 || r3.Closes() != 1 || r2.Closes() != 0 {
		t.Fatalf("closes = %d %d %d", r1.Closes(), r2.Closes(), r3.Closes())
	}
	if _, err := call(t, m, kept, wire.MethodGetItems, int64(keptReg.Handle)); err != nil {
		t.Fatalf("other isolate lost its reader: %v", err)
	}
}

func TestManager_Close(t *testing.T) {
	m := New()
	r := textReader()
	isolate := readerbridge.NewIsolateID()
	reg, _ := m.RegisterPlatformReader(context.Background(), r, isolate)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if r.Closes() != 1 {
		t.Fatalf("reader closed %d times", r.Closes())
	}

	_, err := call(t, m, isolate, wire.MethodGetItems, int64(reg.Handle))
	if !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("Expected closed, got %v", err)
	}
	if _, err := m.RegisterPlatformReader(context.Background(), textReader(), isolate); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("register after close = %v", err)
	}
	reg.FinalizableHandle.Finalize()
}

func TestManager_NotificationFailureLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := newRecorder()
	rec.err = stderrors.New("isolate gone")
	m := newManager(t, WithInvoker(rec), WithLogger(zap.New(core)))
	isolate := readerbridge.NewIsolateID()

	r := textReader().WithReadHook(func(_ context.Context, _ reader.ItemHandle, _ string, p reader.Progress) error {
		p.ReportIndeterminate()
		return nil
	})
	reg, _ := m.RegisterPlatformReader(context.Background(), r, isolate)

	args := formatArgs(int64(reg.Handle), 1, "text/plain")
	args["progressId"] = int64(1)
	if _, err := call(t, m, isolate, wire.MethodGetItemData, args); err != nil {
		t.Fatalf("notification failure leaked into the request: %v", err)
	}
	syncLoop(t, m)

	entries := logs.FilterMessage("notification failed").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one warning, got %d", len(entries))
	}
	if entries[0].ContextMap()["method"] != wire.MethodUpdateProgress {
		t.Fatalf("warning fields = %v", entries[0].ContextMap())
	}
}

func TestManager_RegisterCanceledContext(t *testing.T) {
	m := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := textReader()
	if _, err := m.RegisterPlatformReader(ctx, r, readerbridge.NewIsolateID()); err == nil {
		// The loop may win the race with the canceled context.
		return
	}
	syncLoop(t, m)
	syncLoop(t, m)
	if r.Closes() != 1 {
		t.Fatalf("abandoned registration closed %d times, want 1", r.Closes())
	}
}

// watchedContext reports when someone first waits on it and when its
// error is first read.
type watchedContext struct {
	context.Context
	waiting  chan struct{}
	erred    chan struct{}
	waitOnce sync.Once
	errOnce  sync.Once
}

func (c *watchedContext) Done() <-chan struct{} {
	c.waitOnce.Do(func() { close(c.waiting) })
	return c.Context.Done()
}

func (c *watchedContext) Err() error {
	err := c.Context.Err()
	if err != nil {
		c.errOnce.Do(func() { close(c.erred) })
	}
	return err
}

func TestManager_UndoRunsWhenLoopCloses(t *testing.T) {
	loop := runloop.New()
	m := New(WithLoop(loop))
	defer m.Close()

	gate := make(chan struct{})
	loop.Post(func() { <-gate })

	parent, cancel := context.WithCancel(context.Background())
	ctx := &watchedContext{Context: parent, waiting: make(chan struct{}), erred: make(chan struct{})}
	var ran []string
	var mu sync.Mutex
	record := func(s string) func() {
		return func() {
			mu.Lock()
			ran = append(ran, s)
			mu.Unlock()
		}
	}

	result := make(chan error, 1)
	go func() {
		result <- m.onLoop(ctx, record("fn"), record("undo"))
	}()

	// fn is queued once onLoop waits on ctx.
	<-ctx.waiting
	go loop.Close()
	for loop.Post(func() {}) {
		time.Sleep(time.Millisecond)
	}

	// Hold fn back until the wait has given up on ctx.
	cancel()
	<-ctx.erred
	close(gate)
	if err := <-result; !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Expected canceled, got %v", err)
	}
	<-loop.Done()

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 2 || ran[0] != "fn" || ran[1] != "undo" {
		t.Fatalf("ran = %v, want [fn undo]", ran)
	}
}

func TestManager_CloseAfterLoopClosed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	loop := runloop.New()
	m := New(WithLoop(loop), WithLogger(zap.New(core)))

	r := textReader()
	if _, err := m.RegisterPlatformReader(context.Background(), r, readerbridge.NewIsolateID()); err != nil {
		t.Fatalf("RegisterPlatformReader: %v", err)
	}
	loop.Close()

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Closes() != 1 {
		t.Fatalf("reader closed %d times, want 1", r.Closes())
	}
	if logs.FilterMessage("loop already closed, releasing readers inline").Len() != 1 {
		t.Fatal("Expected a warning for the closed loop")
	}
}
