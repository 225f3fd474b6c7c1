// Package launcher bridges caller goroutines to child processes that are
// actually spawned by a single external helper process, multiplexing all
// traffic over one duplex byte stream.
//
// A host constructs one Multiplexer, starts it with Run, and then calls
// Register once per process it wants to manage; the returned
// CallerEndpoint exposes Start, Write, Cancel, the WaitFor* blocking
// primitives, and the buffered/forwarded output accessors. Everything
// that crosses the wire is defined in the wire subpackage.
package launcher
