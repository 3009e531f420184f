// Package pipeline hosts a record-layer handler behind a single-goroutine,
// run-to-completion event loop.
//
// The pipeline models the push-based side of the simulated link: callers
// inject inbound wire bytes with FireInbound and application writes with
// WriteOutbound; both return a Pending handle that resolves once the hosted
// handler has accepted the data. The handler emits its own output through
// two taps — wire bytes destined for the peer and decrypted application
// bytes — which the harness registers before Start.
//
// All events are dispatched in FIFO order from exactly one loop goroutine.
// Handler faults are surfaced on the event's Pending, never by panicking
// the loop.
package pipeline
