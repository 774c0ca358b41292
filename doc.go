// Package readerbridge exposes platform data readers (drag and drop
// payloads, clipboard contents) to sandboxed client isolates.
//
// A native reader is registered with a manager, which hands the client a
// numeric handle. The client then queries the reader through method calls
// addressed to the "DataReaderManager" namespace and receives progress
// notifications for long-running reads.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	readerbridge/        Root package with the wire Value and IsolateID types
//	├── bridge/          The manager: reader registry, request dispatch, notifications
//	├── client/          Client side: isolates, reader proxies and progress tracking
//	├── wire/            Method names, request decoding and call errors
//	├── reader/          The Reader contract plus memory, fsreader and clipboard readers
//	├── progress/        Progress channels and the per-isolate progress registry
//	├── resource/        Handle tables, allocators and finalizable tokens
//	├── runloop/         Single-goroutine loop owning manager state
//	├── telemetry/       Prometheus collectors for readers, requests and notifications
//	├── config/          Environment configuration
//	├── logging/         zap logger construction
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Register a reader and query it from an isolate:
//
//	hub := client.NewHub(nil)
//	defer hub.Close(ctx)
//
//	iso := hub.Attach()
//	proxy, err := iso.Register(ctx, rd)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer proxy.Dispose(ctx)
//
//	items, err := proxy.Items(ctx)
//
// # Reader Lifetime
//
// A reader stays registered until the client disposes its handle, the
// registration token is finalized, or the isolate detaches. Requests already
// running keep the reader alive until they return; it is closed exactly once
// after the last of them.
//
// # Thread Safety
//
// Manager state is owned by a single loop goroutine. Reader methods run on
// the caller's goroutine, so readers must be safe for concurrent use.
// Notifications are delivered to each isolate in the order they were sent.
package readerbridge
