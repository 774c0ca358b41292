package bridge

import (
	"context"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/progress"
	"github.com/wippyai/reader-bridge/reader"
	"github.com/wippyai/reader-bridge/resource"
	"github.com/wippyai/reader-bridge/runloop"
	"github.com/wippyai/reader-bridge/telemetry"
)

// Namespace is the channel name clients address the manager by.
const Namespace = "DataReaderManager"

// tokenSize is the memory hint attached to finalizable handles so the
// client collector accounts for the native reader behind them.
const tokenSize = 32

// RegisteredDataReader is handed to the client when a reader is
// registered.
type RegisteredDataReader struct {
	FinalizableHandle *resource.FinalizableHandle
	Handle            resource.Handle
}

// ToValue renders the registration for the wire. The finalizable handle
// travels as an opaque value.
func (r RegisteredDataReader) ToValue() readerbridge.Value {
	return map[string]readerbridge.Value{
		"handle":            int64(r.Handle),
		"finalizableHandle": r.FinalizableHandle,
	}
}

// registered is a reader table entry.
type registered struct {
	reader  reader.Reader
	token   *resource.FinalizableHandle
	logger  *zap.Logger
	isolate readerbridge.IsolateID
}

// Drop closes the reader once the table and all requests have let go.
func (r *registered) Drop() {
	c, ok := r.reader.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		r.logger.Warn("reader close failed", zap.Error(err))
		return
	}
	r.logger.Debug("reader closed")
}

// Manager is the DataReaderManager. Create it with New; the zero value is
// not usable.
type Manager struct {
	ctx      context.Context
	stop     context.CancelFunc
	loop     *runloop.Loop
	readers  *resource.Table[*registered]
	progress *progress.Registry
	invoker  Invoker
	logger   *zap.Logger
	metrics  telemetry.Collector
	ownsLoop bool
	closed   atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithInvoker sets where outbound notifications are sent. Without one,
// notifications are dropped.
func WithInvoker(inv Invoker) Option {
	return func(m *Manager) {
		m.invoker = inv
	}
}

// WithTelemetry sets the metrics collector.
func WithTelemetry(c telemetry.Collector) Option {
	return func(m *Manager) {
		if c != nil {
			m.metrics = c
		}
	}
}

// WithLoop runs the manager on an existing loop. The caller keeps
// ownership: Close does not stop it.
func WithLoop(l *runloop.Loop) Option {
	return func(m *Manager) {
		m.loop = l
	}
}

// New creates a manager. Unless WithLoop is given it starts a loop of its
// own, stopped by Close.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:  Logger(),
		metrics: telemetry.Noop(),
		readers: resource.NewTable[*registered](),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("channel", Namespace))
	if m.loop == nil {
		m.loop = runloop.New(runloop.WithLogger(m.logger), runloop.WithName(Namespace))
		m.ownsLoop = true
	}
	m.ctx, m.stop = context.WithCancel(context.Background())
	m.progress = progress.NewRegistry(m.loop)
	m.progress.OnChange(m.metrics.SetProgressChannels)
	m.readers.Subscribe(resource.ObserverFunc(m.onReaderEvent))
	return m
}

// Namespace returns the channel name the manager answers on.
func (m *Manager) Namespace() string {
	return Namespace
}

// Close disposes every reader and stops notifications. Requests still
// running keep their readers until they finish. Close is idempotent.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.stop()
	if !m.loop.Post(func() { m.readers.Close() }) {
		m.logger.Warn("loop already closed, releasing readers inline")
		<-m.loop.Done()
		m.readers.Close()
	}
	if m.ownsLoop {
		m.loop.Close()
	}
	m.logger.Debug("manager closed")
	return nil
}

// Sync waits until every task already queued on the manager's loop, such
// as pending notifications or releases, has run.
func (m *Manager) Sync(ctx context.Context) error {
	return m.loop.Sync(ctx)
}

// RegisterPlatformReader takes ownership of r on behalf of isolate and
// returns its handle and finalizable token. It must not be called from the
// manager's loop.
func (m *Manager) RegisterPlatformReader(ctx context.Context, r reader.Reader, isolate readerbridge.IsolateID) (RegisteredDataReader, error) {
	if m.closed.Load() {
		return RegisteredDataReader{}, errors.Closed("reader manager")
	}

	var (
		reg RegisteredDataReader
		err error
	)
	do := func() {
		reg, err = m.register(r, isolate)
	}
	undo := func() {
		if reg.FinalizableHandle != nil {
			reg.FinalizableHandle.Finalize()
		}
	}
	if doErr := m.onLoop(ctx, do, undo); doErr != nil {
		return RegisteredDataReader{}, doErr
	}
	return reg, err
}

func (m *Manager) register(r reader.Reader, isolate readerbridge.IsolateID) (RegisteredDataReader, error) {
	entry := &registered{reader: r, isolate: isolate}
	h, err := m.readers.Insert(entry)
	if err != nil {
		return RegisteredDataReader{}, errors.Closed("reader manager")
	}
	entry.logger = m.logger.With(zap.Int64("reader", int64(h)), zap.Stringer("isolate", isolate))
	entry.token = resource.NewFinalizableHandle(tokenSize, isolate, h, func() {
		m.loop.Post(func() {
			if _, ok := m.readers.Remove(h); ok {
				entry.logger.Debug("reader finalized")
			}
		})
	})
	entry.logger.Debug("reader registered")
	return RegisteredDataReader{Handle: h, FinalizableHandle: entry.token}, nil
}

// DisposeIsolate releases every reader and progress id owned by isolate,
// for when the isolate goes away. It returns the number of readers
// released.
func (m *Manager) DisposeIsolate(ctx context.Context, isolate readerbridge.IsolateID) (int, error) {
	var n int
	err := m.onLoop(ctx, func() {
		var handles []resource.Handle
		m.readers.Each(func(h resource.Handle, e *registered) bool {
			if e.isolate == isolate {
				handles = append(handles, h)
			}
			return true
		})
		for _, h := range handles {
			m.dispose(h)
		}
		n = len(handles)
		progressIDs := m.progress.RemoveIsolate(isolate)
		m.logger.Debug("isolate disposed",
			zap.Stringer("isolate", isolate),
			zap.Int("readers", n),
			zap.Int("progress", progressIDs))
	}, nil)
	return n, err
}

// get resolves handle. Loop only.
func (m *Manager) get(handle int64) (reader.Reader, error) {
	e, ok := m.readers.Get(resource.Handle(handle))
	if !ok {
		return nil, errors.ReaderNotFound(handle)
	}
	return e.reader, nil
}

// borrow resolves handle and keeps the reader alive until the borrow is
// returned. Loop only.
func (m *Manager) borrow(handle int64) (*resource.Borrow[*registered], error) {
	b, ok := m.readers.Borrow(resource.Handle(handle))
	if !ok {
		return nil, errors.ReaderNotFound(handle)
	}
	return b, nil
}

// dispose removes handle if present. Loop only.
func (m *Manager) dispose(handle resource.Handle) {
	if e, ok := m.readers.Remove(handle); ok {
		e.logger.Debug("reader disposed")
	}
}

func (m *Manager) onReaderEvent(ev resource.Event) {
	switch ev.Type {
	case resource.EventCreated, resource.EventDropped:
		m.metrics.SetReaders(m.readers.Len())
	}
}

// onLoop runs fn on the loop and waits for it. If ctx ends first, undo
// (when non-nil) is queued behind fn so that whatever fn did once it
// finally ran can be reverted. A loop that is already closing still runs
// fn, so undo then runs inline once the loop has drained.
func (m *Manager) onLoop(ctx context.Context, fn, undo func()) error {
	err := m.loop.Do(ctx, fn)
	if err != nil && undo != nil && ctx.Err() != nil {
		if !m.loop.Post(undo) {
			<-m.loop.Done()
			undo()
		}
	}
	return err
}

// Reader returns the reader registered under handle.
func (m *Manager) Reader(ctx context.Context, handle int64) (reader.Reader, error) {
	var (
		r   reader.Reader
		err error
	)
	if doErr := m.onLoop(ctx, func() { r, err = m.get(handle) }, nil); doErr != nil {
		return nil, doErr
	}
	return r, err
}
