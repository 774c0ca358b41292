package resource

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("resource table closed")

// Table maps handles to values with borrow tracking.
//
// The map itself is not synchronized: Insert, Get, Borrow, Remove and the
// observer registration must all happen on the goroutine that owns the
// table. Only Borrow.Return may be called from other goroutines.
//
// A value stays alive while the table or any borrow references it. Once
// the last reference is gone the value's Drop method (if it implements
// Dropper) runs exactly once, on whichever goroutine let go last.
type Table[T any] struct {
	entries   map[Handle]*entry[T]
	observers []Observer
	alloc     Allocator
	closed    bool
}

type entry[T any] struct {
	value  T
	handle Handle
	refs   atomic.Int32
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries: make(map[Handle]*entry[T]),
	}
}

// Insert adds a value and returns its freshly allocated handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	if t.closed {
		return 0, ErrClosed
	}

	h := t.alloc.Next()
	e := &entry[T]{value: value, handle: h}
	e.refs.Store(1)
	t.entries[h] = e

	t.notify(Event{Type: EventCreated, Handle: h, Value: value})
	return h, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(handle Handle) (T, bool) {
	e, ok := t.entries[handle]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Contains reports whether handle is present.
func (t *Table[T]) Contains(handle Handle) bool {
	_, ok := t.entries[handle]
	return ok
}

// Borrow retrieves a value and keeps it alive until the returned Borrow is
// returned, even if the handle is removed in the meantime.
func (t *Table[T]) Borrow(handle Handle) (*Borrow[T], bool) {
	e, ok := t.entries[handle]
	if !ok {
		return nil, false
	}
	e.refs.Add(1)
	t.notify(Event{Type: EventBorrowed, Handle: handle, Value: e.value})
	return &Borrow[T]{entry: e}, true
}

// Remove deletes handle from the table and returns (value, true) if it was
// present. Removing an absent handle is a no-op returning false.
func (t *Table[T]) Remove(handle Handle) (T, bool) {
	e, ok := t.entries[handle]
	if !ok {
		var zero T
		return zero, false
	}
	delete(t.entries, handle)

	t.notify(Event{Type: EventDropped, Handle: handle, Value: e.value})
	e.release()
	return e.value, true
}

// Len returns the number of handles in the table.
func (t *Table[T]) Len() int {
	return len(t.entries)
}

// Last returns the most recently issued handle.
func (t *Table[T]) Last() Handle {
	return t.alloc.Last()
}

// Each iterates over the table in handle order until fn returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	for _, h := range slices.Sorted(maps.Keys(t.entries)) {
		if !fn(h, t.entries[h].value) {
			return
		}
	}
}

// Clear removes every handle.
func (t *Table[T]) Clear() {
	for _, h := range slices.Sorted(maps.Keys(t.entries)) {
		t.Remove(h)
	}
}

// Close removes every handle and rejects further inserts.
func (t *Table[T]) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.Clear()
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table[T]) notify(e Event) {
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

func (e *entry[T]) release() {
	if e.refs.Add(-1) != 0 {
		return
	}
	if d, ok := any(e.value).(Dropper); ok {
		d.Drop()
	}
}

// Borrow is a temporary reference to a table value.
type Borrow[T any] struct {
	entry *entry[T]
	once  sync.Once
}

// Value returns the borrowed value.
func (b *Borrow[T]) Value() T {
	return b.entry.value
}

// Handle returns the handle the value was borrowed under.
func (b *Borrow[T]) Handle() Handle {
	return b.entry.handle
}

// Return gives the reference back. Safe to call from any goroutine and
// more than once; only the first call counts.
func (b *Borrow[T]) Return() {
	b.once.Do(b.entry.release)
}
