// Package progress implements the channel that carries progress and
// cancellation signals between a long-running reader operation and the
// client that requested it.
//
// A ReadProgress is created on the bridge's run loop for each item-data or
// virtual-file request. Readers report from whatever goroutine does the
// work; the channel re-posts every signal onto the loop, so the outbound
// notifications and the cancellation handler never race with teardown.
//
// The Registry holds only weak references. The in-flight request owns its
// channel, and the registry entry goes away when the request releases the
// channel or the channel is collected.
package progress
