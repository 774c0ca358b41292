package resource

import (
	"sync"
	"sync/atomic"

	readerbridge "github.com/wippyai/reader-bridge"
)

// FinalizableHandle ties a table handle to the client-side proxy that
// references it. The release callback fires at most once: either when the
// client disposes the proxy explicitly or when the client runtime collects
// it and calls Finalize.
//
// Finalize may be called from any goroutine, including a collector
// cleanup. The release callback is expected to hand the actual removal over
// to the table's owning goroutine.
type FinalizableHandle struct {
	release func()
	isolate readerbridge.IsolateID
	handle  Handle
	size    int
	once    sync.Once
	fired   atomic.Bool
}

// NewFinalizableHandle creates a handle guard. size is the estimated
// external memory the client should attribute to the proxy.
func NewFinalizableHandle(size int, isolate readerbridge.IsolateID, handle Handle, release func()) *FinalizableHandle {
	return &FinalizableHandle{
		release: release,
		isolate: isolate,
		handle:  handle,
		size:    size,
	}
}

// Finalize fires the release callback. It returns true only for the call
// that actually fired it.
func (f *FinalizableHandle) Finalize() bool {
	fired := false
	f.once.Do(func() {
		f.fired.Store(true)
		fired = true
		if f.release != nil {
			f.release()
		}
	})
	return fired
}

// Finalized reports whether Finalize has fired.
func (f *FinalizableHandle) Finalized() bool {
	return f.fired.Load()
}

// Handle returns the guarded handle.
func (f *FinalizableHandle) Handle() Handle {
	return f.handle
}

// Isolate returns the isolate that owns the client-side proxy.
func (f *FinalizableHandle) Isolate() readerbridge.IsolateID {
	return f.isolate
}

// EstimatedSize returns the external size hint passed at construction.
func (f *FinalizableHandle) EstimatedSize() int {
	return f.size
}
