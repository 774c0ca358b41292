package bridge

import (
	"context"

	"go.uber.org/zap"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/progress"
	"github.com/wippyai/reader-bridge/telemetry"
	"github.com/wippyai/reader-bridge/wire"
)

// Invoker delivers fire-and-forget calls to a client isolate. The manager
// calls it from its loop, so CallMethod must not wait on the manager.
type Invoker interface {
	CallMethod(ctx context.Context, isolate readerbridge.IsolateID, method string, args readerbridge.Value) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, isolate readerbridge.IsolateID, method string, args readerbridge.Value) error

func (f InvokerFunc) CallMethod(ctx context.Context, isolate readerbridge.IsolateID, method string, args readerbridge.Value) error {
	return f(ctx, isolate, method, args)
}

// newProgress registers a progress channel for (isolate, id) whose signals
// become notifications to isolate. Loop only.
func (m *Manager) newProgress(isolate readerbridge.IsolateID, id int64) *progress.ReadProgress {
	onCancellable := func(cancellable bool) {
		m.notify(isolate, wire.MethodSetProgressCancellable, wire.SetProgressCancellable{
			ProgressID:  id,
			Cancellable: cancellable,
		}.ToValue())
	}
	onProgress := func(fraction *float64) {
		m.notify(isolate, wire.MethodUpdateProgress, wire.ProgressUpdate{
			ProgressID: id,
			Fraction:   fraction,
		}.ToValue())
	}
	return m.progress.New(isolate, id, onCancellable, onProgress)
}

// notify sends one notification. Failures are logged and otherwise
// ignored; nothing is sent once the manager is closed.
func (m *Manager) notify(isolate readerbridge.IsolateID, method string, args readerbridge.Value) {
	if m.invoker == nil || m.closed.Load() {
		return
	}
	if err := m.invoker.CallMethod(m.ctx, isolate, method, args); err != nil {
		m.metrics.IncNotification(method, telemetry.OutcomeError)
		m.logger.Warn("notification failed",
			zap.String("method", method),
			zap.Stringer("isolate", isolate),
			zap.Error(err))
		return
	}
	m.metrics.IncNotification(method, telemetry.OutcomeOK)
}
