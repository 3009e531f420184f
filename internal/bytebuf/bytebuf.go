// Package bytebuf provides a growable byte accumulator with cursor-based
// consumption.
//
// An Accumulator stages bytes flowing through the harness: the pipeline's
// output taps append into one, and the consumer side drains it in whatever
// chunk sizes it likes. Bytes before the read cursor are permanently
// discarded.
//
// The Accumulator is NOT internally synchronized. Callers that share one
// between goroutines (e.g. a pipeline tap producing and a blocking read
// consuming) must serialize access with their own mutex.
package bytebuf

// Accumulator is a resizable byte buffer with independent read and write
// cursors.
//
// INVARIANT: read cursor <= write cursor <= capacity. The write cursor is
// the end of the backing slice; the read cursor marks the start of
// unconsumed data.
type Accumulator struct {
	buf []byte
	off int // read cursor into buf
}

// New creates an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Append copies p into the buffer, growing capacity geometrically as
// needed. Amortized O(1) per appended byte. Appending an empty slice is a
// no-op.
func (a *Accumulator) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	a.compact()
	a.buf = append(a.buf, p...)
}

// Readable returns the number of unconsumed bytes.
func (a *Accumulator) Readable() int {
	return len(a.buf) - a.off
}

// Consume copies up to len(dst) unconsumed bytes into dst, advances the
// read cursor, and returns the number of bytes copied. Returns 0 when no
// data is available; never blocks.
func (a *Accumulator) Consume(dst []byte) int {
	n := copy(dst, a.buf[a.off:])
	a.off += n
	a.compact()
	return n
}

// Next returns a copy of up to max unconsumed bytes and advances the read
// cursor past them. Returns nil when no data is available.
func (a *Accumulator) Next(max int) []byte {
	readable := a.Readable()
	if readable == 0 || max <= 0 {
		return nil
	}
	if max > readable {
		max = readable
	}
	out := make([]byte, max)
	a.Consume(out)
	return out
}

// Bytes returns a copy of all unconsumed bytes without advancing the read
// cursor.
func (a *Accumulator) Bytes() []byte {
	out := make([]byte, a.Readable())
	copy(out, a.buf[a.off:])
	return out
}

// Reset discards all data and cursors, retaining the backing array.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
	a.off = 0
}

// compact reclaims the consumed prefix. Only resets when fully drained:
// shifting live data on every Consume would make draining O(n^2).
func (a *Accumulator) compact() {
	if a.off == len(a.buf) {
		a.buf = a.buf[:0]
		a.off = 0
	}
}
