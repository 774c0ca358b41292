package client

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/bridge"
	"github.com/wippyai/reader-bridge/errors"
	"github.com/wippyai/reader-bridge/reader"
	"github.com/wippyai/reader-bridge/resource"
	"github.com/wippyai/reader-bridge/runloop"
	"github.com/wippyai/reader-bridge/wire"
)

// NotificationHandler receives every notification sent to an isolate.
type NotificationHandler func(method string, args readerbridge.Value)

// Isolate is one client execution context. Notifications addressed to it
// are handled on its own loop, one at a time and in the order they were
// sent.
type Isolate struct {
	hub      *Hub
	logger   *zap.Logger
	loop     *runloop.Loop
	progress map[int64]*Progress
	handlers []NotificationHandler
	ids      resource.Allocator
	id       readerbridge.IsolateID
	mu       sync.Mutex
	detached atomic.Bool
}

func newIsolate(h *Hub, id readerbridge.IsolateID) *Isolate {
	logger := h.logger.With(zap.Stringer("isolate", id))
	return &Isolate{
		hub:      h,
		logger:   logger,
		loop:     runloop.New(runloop.WithLogger(logger), runloop.WithName("isolate")),
		progress: make(map[int64]*Progress),
		id:       id,
	}
}

// ID returns the isolate identity.
func (i *Isolate) ID() readerbridge.IsolateID {
	return i.id
}

// OnNotification adds a handler for incoming notifications. Handlers run
// on the isolate's loop.
func (i *Isolate) OnNotification(fn NotificationHandler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers = append(i.handlers, fn)
}

// Call sends a request to the manager and returns its result. Failures
// come back as *wire.CallError, the way a remote client would see them.
func (i *Isolate) Call(ctx context.Context, method string, args readerbridge.Value) (readerbridge.Value, error) {
	if i.detached.Load() {
		return nil, wire.NewCallError(errors.Closed("isolate"))
	}
	result, err := i.hub.manager.OnMethodCall(ctx, wire.MethodCall{
		Isolate: i.id,
		Method:  method,
		Args:    args,
	})
	if err != nil {
		return nil, wire.NewCallError(err)
	}
	return result, nil
}

// Register hands r to the manager on behalf of this isolate and returns a
// proxy for it.
func (i *Isolate) Register(ctx context.Context, r reader.Reader) (*ReaderProxy, error) {
	reg, err := i.hub.manager.RegisterPlatformReader(ctx, r, i.id)
	if err != nil {
		return nil, err
	}
	return i.Adopt(reg), nil
}

// Adopt wraps a registration made for this isolate in a proxy.
func (i *Isolate) Adopt(reg bridge.RegisteredDataReader) *ReaderProxy {
	return newReaderProxy(i, reg)
}

// NewProgress allocates a progress id for this isolate. onChange, if set,
// runs on the isolate's loop after every update.
func (i *Isolate) NewProgress(onChange func(ProgressState)) *Progress {
	i.mu.Lock()
	defer i.mu.Unlock()
	p := &Progress{
		isolate:  i,
		id:       int64(i.ids.Next()),
		onChange: onChange,
	}
	i.progress[p.id] = p
	return p
}

// Detach disconnects the isolate: it stops receiving notifications and
// every reader and progress id it owned is released. It must not be
// called from a notification handler.
func (i *Isolate) Detach(ctx context.Context) error {
	if !i.detached.CompareAndSwap(false, true) {
		return nil
	}
	i.hub.remove(i.id)
	i.loop.Close()

	n, err := i.hub.manager.DisposeIsolate(ctx, i.id)
	if err != nil {
		return err
	}
	i.logger.Debug("isolate detached", zap.Int("readers", n))
	return nil
}

func (i *Isolate) deliver(method string, args readerbridge.Value) error {
	if !i.loop.Post(func() { i.dispatch(method, args) }) {
		return errors.Closed("isolate")
	}
	return nil
}

// dispatch runs on the isolate's loop.
func (i *Isolate) dispatch(method string, args readerbridge.Value) {
	switch method {
	case wire.MethodSetProgressCancellable:
		n, err := wire.DecodeSetProgressCancellable(args)
		if err != nil {
			i.logger.Warn("bad notification", zap.String("method", method), zap.Error(err))
			break
		}
		if p := i.lookupProgress(n.ProgressID); p != nil {
			p.update(func(s *ProgressState) { s.Cancellable = n.Cancellable })
		}
	case wire.MethodUpdateProgress:
		n, err := wire.DecodeProgressUpdate(args)
		if err != nil {
			i.logger.Warn("bad notification", zap.String("method", method), zap.Error(err))
			break
		}
		if p := i.lookupProgress(n.ProgressID); p != nil {
			p.update(func(s *ProgressState) { s.Fraction = n.Fraction })
		}
	}

	i.mu.Lock()
	handlers := i.handlers
	i.mu.Unlock()
	for _, fn := range handlers {
		fn(method, args)
	}
}

func (i *Isolate) lookupProgress(id int64) *Progress {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.progress[id]
}

func (i *Isolate) forgetProgress(id int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.progress, id)
}
