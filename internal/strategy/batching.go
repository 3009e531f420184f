package strategy

import (
	"sync"
	"time"

	"github.com/wirecheck/wirecheck/internal/pipeline"
)

// BatchingConfig parameterizes a Batching strategy.
type BatchingConfig struct {
	// MaxBytes triggers a flush once the staging buffer reaches this size.
	MaxBytes int

	// MaxDelay bounds how long the first unflushed byte may sit staged.
	// A single-shot timer is armed when bytes land in an empty staging
	// buffer and cleared on every flush.
	MaxDelay time.Duration

	// FlushOnBoundary flushes at every logical write boundary, mimicking
	// one TLS record per blocking-stream write.
	FlushOnBoundary bool
}

// Batching coalesces writes in a staging buffer and releases the whole
// buffer as one payload when a flush trigger fires.
//
// Each Write's Pending is linked to the flush that carries its bytes: the
// flush submits one payload to the sink and propagates that submission's
// result to every linked Pending. A zero-length write stages nothing but
// still links a Pending to the next flush; a flush with waiters and no
// staged bytes submits an empty payload so those Pendings resolve.
//
// The staging buffer and timer are guarded by one mutex; Write,
// MarkBoundary, Flush and the timer callback are mutually exclusive.
type Batching struct {
	sink Sink
	cfg  BatchingConfig

	mu      sync.Mutex
	staged  []byte
	waiters []*pipeline.Pending
	timer   *time.Timer
	closed  bool
}

// NewBatching creates a Batching strategy bound to sink.
func NewBatching(sink Sink, cfg BatchingConfig) *Batching {
	return &Batching{sink: sink, cfg: cfg}
}

// Write stages a copy of p. Flushes immediately if the staged size reaches
// MaxBytes; otherwise arms the delay timer when p is the first staged data.
func (b *Batching) Write(p []byte) *pipeline.Pending {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return pipeline.Completed(pipeline.ErrClosed)
	}

	w := pipeline.NewPending()
	b.waiters = append(b.waiters, w)

	if len(p) > 0 {
		wasEmpty := len(b.staged) == 0
		b.staged = append(b.staged, p...)

		if b.cfg.MaxBytes > 0 && len(b.staged) >= b.cfg.MaxBytes {
			b.flushLocked()
			return w
		}
		if wasEmpty && b.cfg.MaxDelay > 0 {
			b.armTimerLocked()
		}
	}

	return w
}

// MarkBoundary flushes staged bytes when FlushOnBoundary is set; otherwise
// it is a no-op.
func (b *Batching) MarkBoundary() {
	if !b.cfg.FlushOnBoundary {
		return
	}
	b.Flush()
}

// Flush releases the staging buffer unconditionally.
func (b *Batching) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Close flushes remaining staged bytes and stops the timer. Writes after
// Close resolve immediately with pipeline.ErrClosed.
func (b *Batching) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
	b.closed = true
	return nil
}

// flushLocked submits the staged buffer and hands the submission's result
// to every waiter. Caller holds b.mu.
func (b *Batching) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.staged) == 0 && len(b.waiters) == 0 {
		return
	}

	payload := b.staged
	b.staged = nil
	waiters := b.waiters
	b.waiters = nil

	if payload == nil {
		// Only zero-length writes are staged; submit an empty fragment so
		// their completions still resolve.
		payload = []byte{}
	}

	pend := b.sink.Submit(payload)
	go func() {
		<-pend.Done()
		err := pend.Err()
		for _, w := range waiters {
			w.Complete(err)
		}
	}()
}

// armTimerLocked arms the single-shot delay timer. Caller holds b.mu.
func (b *Batching) armTimerLocked() {
	if b.timer != nil {
		return
	}
	b.timer = time.AfterFunc(b.cfg.MaxDelay, b.onDelay)
}

// onDelay is the timer callback. A flush that raced the timer leaves the
// staging buffer empty, making this a no-op.
func (b *Batching) onDelay() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = nil
	b.flushLocked()
}
