package progress

import (
	"math"
	"runtime"
	"sync"

	"github.com/wippyai/reader-bridge/runloop"
)

// ReadProgress correlates one long-running read with the client that asked
// for it. The reader reports fractional progress and whether the operation
// can currently be canceled; the client may request cancellation.
//
// Every method is safe to call from any goroutine. The callbacks and the
// cancellation handler always run on the loop the channel was created on,
// after the method that triggered them has returned.
type ReadProgress struct {
	sender   runloop.Sender
	notifier *DropNotifier
	inner    inner
	mu       sync.Mutex
}

type inner struct {
	cancellationHandler func()
	onCancellable       func(cancellable bool)
	onProgress          func(fraction *float64)
	canceled            bool
}

// NewReadProgress creates a channel bound to sender. onCancellable and
// onProgress receive the outbound signals; drop fires once the channel is
// released or collected.
func NewReadProgress(sender runloop.Sender, drop *DropNotifier, onCancellable func(bool), onProgress func(*float64)) *ReadProgress {
	if onCancellable == nil {
		onCancellable = func(bool) {}
	}
	if onProgress == nil {
		onProgress = func(*float64) {}
	}
	if drop == nil {
		drop = NewDropNotifier(nil)
	}
	p := &ReadProgress{
		sender:   sender,
		notifier: drop,
		inner: inner{
			onCancellable: onCancellable,
			onProgress:    onProgress,
		},
	}
	runtime.AddCleanup(p, func(n *DropNotifier) { n.Notify() }, drop)
	return p
}

// SetCancellationHandler replaces the handler invoked by Cancel. A nil
// handler means the operation cannot be interrupted right now. The client
// is told whether the operation is cancellable either way.
func (p *ReadProgress) SetCancellationHandler(handler func()) {
	p.sender.Post(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.inner.cancellationHandler = handler
		p.inner.onCancellable(handler != nil)
	})
}

// ReportProgress delivers a completion fraction, clamped to [0, 1]. NaN is
// reported as indeterminate.
func (p *ReadProgress) ReportProgress(fraction float64) {
	if math.IsNaN(fraction) {
		p.report(nil)
		return
	}
	fraction = min(max(fraction, 0), 1)
	p.report(&fraction)
}

// ReportIndeterminate tells the client that progress is currently unknown.
func (p *ReadProgress) ReportIndeterminate() {
	p.report(nil)
}

func (p *ReadProgress) report(fraction *float64) {
	p.sender.Post(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.inner.onProgress(fraction)
	})
}

// Cancel invokes the current cancellation handler, at most once. Without a
// handler the request is dropped.
func (p *ReadProgress) Cancel() {
	p.sender.Post(p.cancel)
}

// cancel must run on the loop.
func (p *ReadProgress) cancel() {
	p.mu.Lock()
	handler := p.inner.cancellationHandler
	p.inner.cancellationHandler = nil
	if handler != nil {
		p.inner.canceled = true
	}
	p.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// Canceled reports whether a cancellation handler has been consumed.
func (p *ReadProgress) Canceled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inner.canceled
}

// Release ends the channel's registration. The request that created the
// channel calls it when done; a collected channel is released implicitly.
func (p *ReadProgress) Release() {
	p.notifier.Notify()
}
