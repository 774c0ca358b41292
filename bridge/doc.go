// Package bridge implements the DataReaderManager: the host side of the
// channel through which a client isolate works with platform data readers.
//
// # Readers
//
// The platform hands a reader to RegisterPlatformReader together with the
// isolate that will use it. The manager assigns the reader a handle and
// returns it with a finalizable token; the client disposes the reader by
// calling disposeReader or by letting the token be finalized, whichever
// comes first. Either path removes the handle exactly once.
//
// A reader is closed (if it implements io.Closer) when the manager and
// every request still using it have let go, so disposing a reader never
// interrupts a read that is already running.
//
// # Requests
//
// OnMethodCall decodes a wire.MethodCall into a typed request and runs it:
//
//	result, err := m.OnMethodCall(ctx, wire.MethodCall{
//	    Isolate: isolate,
//	    Method:  "getItems",
//	    Args:    int64(handle),
//	})
//
// Unknown methods fail with an invalid_method error. Requests naming an
// unknown reader fail with reader_not_found before the reader is touched.
// Errors returned by readers are passed through unchanged.
//
// # Progress
//
// getItemData and getVirtualFile carry a client-chosen progress id. While
// such a request runs, progress and cancellability are pushed to the
// client through the Invoker as updateProgress and setProgressCancellable
// notifications, and the client may call cancelProgress with the same id.
//
// # Threading
//
// Registry state lives on a single run loop. Reader methods run on the
// goroutine that called OnMethodCall; readers must tolerate concurrent
// calls. Notifications are sent from the loop, in the order the reader
// produced them.
package bridge
