package progress

import (
	"weak"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/runloop"
)

type key struct {
	isolate readerbridge.IsolateID
	id      int64
}

// Registry maps (isolate, progress id) to live progress channels without
// keeping them alive. The request that owns a channel holds the only strong
// reference; the entry disappears when that channel is released.
//
// A Registry is confined to the loop its sender posts to. Progress ids are
// chosen by the client; registering an id that is already in use replaces
// the previous entry.
type Registry struct {
	sender   runloop.Sender
	entries  map[key]weak.Pointer[ReadProgress]
	onChange func(n int)
}

// NewRegistry creates a registry whose channels deliver on sender.
func NewRegistry(sender runloop.Sender) *Registry {
	return &Registry{
		sender:   sender,
		entries:  make(map[key]weak.Pointer[ReadProgress]),
		onChange: func(int) {},
	}
}

// OnChange installs fn to be called with the new entry count after every
// insertion or removal.
func (r *Registry) OnChange(fn func(n int)) {
	if fn == nil {
		fn = func(int) {}
	}
	r.onChange = fn
}

// New creates and registers a channel for (isolate, id).
func (r *Registry) New(isolate readerbridge.IsolateID, id int64, onCancellable func(bool), onProgress func(*float64)) *ReadProgress {
	k := key{isolate: isolate, id: id}

	var wp weak.Pointer[ReadProgress]
	drop := NewDropNotifier(func() {
		r.sender.Post(func() {
			if cur, ok := r.entries[k]; ok && cur == wp {
				delete(r.entries, k)
				r.onChange(len(r.entries))
			}
		})
	})

	p := NewReadProgress(r.sender, drop, onCancellable, onProgress)
	wp = weak.Make(p)
	r.entries[k] = wp
	r.onChange(len(r.entries))
	return p
}

// Cancel removes the entry for (isolate, id) and cancels its channel if it
// is still alive. It reports whether a live channel was found. Unknown or
// finished ids are not an error.
func (r *Registry) Cancel(isolate readerbridge.IsolateID, id int64) bool {
	k := key{isolate: isolate, id: id}
	wp, ok := r.entries[k]
	if !ok {
		return false
	}
	delete(r.entries, k)
	r.onChange(len(r.entries))

	p := wp.Value()
	if p == nil {
		return false
	}
	p.cancel()
	return true
}

// Lookup returns the live channel registered for (isolate, id).
func (r *Registry) Lookup(isolate readerbridge.IsolateID, id int64) (*ReadProgress, bool) {
	wp, ok := r.entries[key{isolate: isolate, id: id}]
	if !ok {
		return nil, false
	}
	p := wp.Value()
	return p, p != nil
}

// RemoveIsolate forgets every entry belonging to isolate and returns how
// many were removed. The channels themselves keep working for their owners.
func (r *Registry) RemoveIsolate(isolate readerbridge.IsolateID) int {
	n := 0
	for k := range r.entries {
		if k.isolate == isolate {
			delete(r.entries, k)
			n++
		}
	}
	if n > 0 {
		r.onChange(len(r.entries))
	}
	return n
}

// Len returns the number of registered entries, live or not yet swept.
func (r *Registry) Len() int {
	return len(r.entries)
}
