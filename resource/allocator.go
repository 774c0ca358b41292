package resource

// Allocator issues strictly increasing handles starting at 1.
// Handles are never reused, so a stale handle held by a client can only
// ever miss; it can never address a newer resource.
//
// An Allocator is not safe for concurrent use. It belongs to the goroutine
// that owns the table it feeds.
type Allocator struct {
	last Handle
}

// Next returns a previously unissued handle.
func (a *Allocator) Next() Handle {
	a.last++
	return a.last
}

// Last returns the most recently issued handle, or 0 if none.
func (a *Allocator) Last() Handle {
	return a.last
}
