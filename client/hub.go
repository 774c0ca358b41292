package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/bridge"
	"github.com/wippyai/reader-bridge/errors"
)

// Hub connects client isolates to one reader manager. It is the manager's
// Invoker: notifications are routed to the isolate they are addressed to.
type Hub struct {
	manager  *bridge.Manager
	logger   *zap.Logger
	isolates map[readerbridge.IsolateID]*Isolate
	mu       sync.RWMutex
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a hub together with the manager it fronts. The manager
// options are applied as given, except that the hub always installs
// itself as the manager's invoker.
func NewHub(managerOpts []bridge.Option, opts ...Option) *Hub {
	h := &Hub{
		logger:   zap.NewNop(),
		isolates: make(map[readerbridge.IsolateID]*Isolate),
	}
	for _, opt := range opts {
		opt(h)
	}
	managerOpts = append(managerOpts[:len(managerOpts):len(managerOpts)], bridge.WithInvoker(h))
	h.manager = bridge.New(managerOpts...)
	return h
}

// Manager returns the manager behind the hub.
func (h *Hub) Manager() *bridge.Manager {
	return h.manager
}

// Attach creates a new isolate connected to the hub.
func (h *Hub) Attach() *Isolate {
	iso := newIsolate(h, readerbridge.NewIsolateID())
	h.mu.Lock()
	h.isolates[iso.id] = iso
	h.mu.Unlock()
	h.logger.Debug("isolate attached", zap.Stringer("isolate", iso.id))
	return iso
}

// Isolate returns the attached isolate with the given id.
func (h *Hub) Isolate(id readerbridge.IsolateID) (*Isolate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	iso, ok := h.isolates[id]
	return iso, ok
}

// Len returns the number of attached isolates.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.isolates)
}

// CallMethod queues a notification for isolate. It never waits for the
// isolate to handle it.
func (h *Hub) CallMethod(_ context.Context, isolate readerbridge.IsolateID, method string, args readerbridge.Value) error {
	iso, ok := h.Isolate(isolate)
	if !ok {
		return errors.NotFound(errors.PhaseNotify, "isolate", isolate.String())
	}
	return iso.deliver(method, args)
}

// Close detaches every isolate and closes the manager.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.RLock()
	isolates := make([]*Isolate, 0, len(h.isolates))
	for _, iso := range h.isolates {
		isolates = append(isolates, iso)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, iso := range isolates {
		if err := iso.Detach(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := h.manager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (h *Hub) remove(id readerbridge.IsolateID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.isolates[id]; !ok {
		return false
	}
	delete(h.isolates, id)
	return true
}

var _ bridge.Invoker = (*Hub)(nil)
