// Package reader defines the contract the bridge consumes from platform
// data readers, together with helpers shared by implementations.
//
// Concrete readers live in subpackages:
//
//	reader/memory     fixed in-memory payloads, used by tests and demos
//	reader/fsreader   a drop of files, materialized as virtual files
//	reader/clipboard  the system clipboard's text
//
// Errors returned by a reader reach the client unchanged.
package reader
