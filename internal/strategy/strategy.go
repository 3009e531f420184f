// Package strategy controls how bytes handed to the mediation adapter's
// write path are released into the pipeline under test.
//
// A Strategy is bound to its Sink at construction and returns exactly one
// Pending per Write call. Immediate releases each write one-for-one;
// Batching coalesces writes in a staging buffer and releases them on a
// size threshold, a delay timer, or an explicit write boundary. The two
// cover the adversarial extremes for a protocol parser reading from a
// byte-stream abstraction: maximal fragmentation and maximal coalescing.
package strategy

import "github.com/wirecheck/wirecheck/internal/pipeline"

// Sink accepts released payloads. The harness wires it to the pipeline's
// inbound injection point. Submit takes ownership of the payload slice and
// must not block.
type Sink interface {
	Submit(payload []byte) *pipeline.Pending
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(payload []byte) *pipeline.Pending

// Submit implements Sink.
func (f SinkFunc) Submit(payload []byte) *pipeline.Pending {
	return f(payload)
}

// Strategy decides when staged bytes reach the sink.
//
// Within one instance, submissions preserve caller order: a flush never
// reorders bytes relative to their staging order. Zero-length writes are
// legal and still yield a Pending that resolves.
type Strategy interface {
	// Write stages or releases p and returns the write's Pending. The
	// strategy copies p before returning; the caller may reuse the slice.
	Write(p []byte) *pipeline.Pending

	// MarkBoundary signals a logical write boundary (one blocking-stream
	// write). Boundary-flushing strategies release staged bytes here.
	MarkBoundary()

	// Flush releases any staged bytes unconditionally. Must be called
	// before the harness evaluates completion so no trailing data is
	// stranded.
	Flush()

	// Close flushes remaining bytes and stops background timers. The
	// strategy must not be used afterwards.
	Close() error
}

// Immediate passes every write through to the sink unmodified, one
// submission per call. Stateless apart from the sink binding.
type Immediate struct {
	sink Sink
}

// NewImmediate creates an Immediate strategy bound to sink.
func NewImmediate(sink Sink) *Immediate {
	return &Immediate{sink: sink}
}

// Write submits a copy of p directly. Zero-length writes submit an empty
// payload so the write still counts as one operation.
func (s *Immediate) Write(p []byte) *pipeline.Pending {
	cp := make([]byte, len(p))
	copy(cp, p)
	return s.sink.Submit(cp)
}

// MarkBoundary is a no-op: every write is already its own submission.
func (s *Immediate) MarkBoundary() {}

// Flush is a no-op: nothing is ever staged.
func (s *Immediate) Flush() {}

// Close is a no-op.
func (s *Immediate) Close() error { return nil }
