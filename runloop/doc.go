// Package runloop provides the single execution context that owns the
// bridge's mutable state.
//
// Registries are touched only from tasks running on a Loop, which is what
// lets them go without locks. Goroutines doing background work hand results
// back with Post (fire and forget) or Do (wait for completion):
//
//	loop := runloop.New(runloop.WithLogger(logger))
//	defer loop.Close()
//
//	loop.Post(func() { registry.Remove(handle) })
//
//	err := loop.Do(ctx, func() { items = registry.Len() })
//
// A panicking task is logged and the loop moves on to the next one.
package runloop
