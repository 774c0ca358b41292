// Package resource provides handle management for host-owned resources
// addressed by a remote client.
//
// The client never holds the resource itself, only an integer handle. This
// package implements the pieces needed to keep the two sides consistent.
//
// # Handles
//
// An Allocator issues strictly increasing handles starting at 1. Handles are
// never reused, so a handle that outlives its resource can only fail lookup.
//
// # Handle Table
//
// Table maps handles to values:
//
//	table := resource.NewTable[reader.Reader]()
//
//	// Insert a value, get a handle
//	handle, err := table.Insert(r)
//
//	// Retrieve value by handle
//	r, ok := table.Get(handle)
//
//	// Remove; a second Remove of the same handle is a no-op
//	r, ok = table.Remove(handle)
//
// Removal is a single map delete, so racing removal triggers compose without
// a separate "disposed" flag.
//
// # Borrows
//
// Work that outlives a single turn of the owning goroutine borrows the value:
//
//	b, ok := table.Borrow(handle)
//	defer b.Return()
//
// A borrowed value survives removal of its handle. Values implementing
// Dropper are dropped once the table and every borrow have let go.
//
// # Finalization
//
// FinalizableHandle is the lifetime guard handed to the client together with
// a handle. It fires its release callback at most once, whether the client
// disposes explicitly or its proxy is collected.
//
// # Observers
//
// Register observers to track resource lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    switch e.Type {
//	    case resource.EventCreated:
//	        log.Printf("resource %d created", e.Handle)
//	    case resource.EventDropped:
//	        log.Printf("resource %d dropped", e.Handle)
//	    }
//	}))
//
// # Thread Safety
//
// Table and Allocator are confined to the goroutine that owns them. Only
// Borrow.Return and FinalizableHandle.Finalize are safe from other goroutines.
package resource
