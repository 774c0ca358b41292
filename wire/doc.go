// Package wire defines the messages exchanged between the reader manager
// and a client isolate.
//
// Inbound calls arrive as a MethodCall: a method name plus loosely typed
// arguments. DecodeRequest turns them into one of a closed set of request
// structs, so malformed input is rejected before any handler runs:
//
//	req, err := wire.DecodeRequest(call.Method, call.Args)
//	if err != nil {
//	    return nil, err // invalid_method or invalid_args
//	}
//	switch r := req.(type) {
//	case wire.GetItems:
//	    ...
//	}
//
// Outbound notifications (setProgressCancellable and updateProgress) are
// fire-and-forget; their argument maps are built with ToValue.
//
// Arguments use camelCase keys. disposeReader, getItems and cancelProgress
// take a bare integer instead of a map.
package wire
