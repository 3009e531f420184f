package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrClosed is returned on Pendings for events submitted after the
// pipeline has been closed, and on events drained during shutdown before
// the handler could accept them.
var ErrClosed = errors.New("pipeline: closed")

// Handler is the record-layer stage hosted by the pipeline.
//
// ServeInbound receives wire bytes (ciphertext) pushed from the simulated
// link; ServeOutbound receives application bytes to frame and encrypt.
// Both are invoked only from the loop goroutine, in submission order. The
// handler MUST eventually complete done — synchronously for work it
// finishes in place, or later from its own goroutines for deferred work. A
// non-nil completion error is a pipeline fault.
type Handler interface {
	// Start is called once before the loop runs. The Emitter is how the
	// handler publishes output for the rest of its lifetime.
	Start(e Emitter) error

	ServeInbound(data []byte, done *Pending)
	ServeOutbound(data []byte, done *Pending)

	// Close releases handler resources. Called after the loop has drained.
	Close() error
}

// Emitter is the handler's output surface.
//
// Emit calls may come from handler-owned goroutines, not just the loop, so
// registered taps must tolerate concurrent invocation. The payload slice is
// only valid for the duration of the call; taps that retain bytes must
// copy.
type Emitter interface {
	// EmitWire publishes bytes destined for the peer side of the link.
	EmitWire(p []byte)
	// EmitApp publishes decrypted application bytes.
	EmitApp(p []byte)
}

// Tap receives bytes published by the handler. See Emitter for the
// concurrency and ownership rules.
type Tap func(p []byte)

// Pipeline drives one Handler with a single-goroutine event loop.
type Pipeline struct {
	handler Handler
	queue   *eventQueue
	clock   clock
	logger  *slog.Logger

	tapMu   sync.RWMutex
	wireTap Tap
	appTap  Tap

	startOnce sync.Once
	closeOnce sync.Once
	loopDone  chan struct{}
	closeErr  error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger. Defaults to a discard handler.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline hosting h. The pipeline does not run until Start.
func New(h Handler, opts ...Option) *Pipeline {
	p := &Pipeline{
		handler:  h,
		queue:    newEventQueue(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnWire registers the tap receiving bytes the handler puts on the wire.
// Must be called before Start.
func (p *Pipeline) OnWire(tap Tap) {
	p.tapMu.Lock()
	defer p.tapMu.Unlock()
	p.wireTap = tap
}

// OnApp registers the tap receiving decrypted application bytes.
// Must be called before Start.
func (p *Pipeline) OnApp(tap Tap) {
	p.tapMu.Lock()
	defer p.tapMu.Unlock()
	p.appTap = tap
}

// Start initializes the handler and launches the loop goroutine.
func (p *Pipeline) Start() error {
	var startErr error
	p.startOnce.Do(func() {
		if err := p.handler.Start(p); err != nil {
			startErr = fmt.Errorf("pipeline: handler start: %w", err)
			close(p.loopDone)
			return
		}
		go p.loop()
	})
	return startErr
}

// FireInbound submits wire bytes toward the handler. The pipeline takes
// ownership of data; the caller must not reuse the slice. The returned
// Pending settles once the handler has accepted the bytes.
func (p *Pipeline) FireInbound(data []byte) *Pending {
	return p.submit(DirInbound, data)
}

// WriteOutbound submits application bytes for the handler to frame.
// Ownership and completion semantics match FireInbound.
func (p *Pipeline) WriteOutbound(data []byte) *Pending {
	return p.submit(DirOutbound, data)
}

// QueueLen reports the number of events awaiting dispatch.
func (p *Pipeline) QueueLen() int {
	return p.queue.len()
}

// Close stops the loop after draining queued events, then closes the
// handler. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.queue.close()
		<-p.loopDone
		p.closeErr = p.handler.Close()
	})
	return p.closeErr
}

func (p *Pipeline) submit(dir Direction, data []byte) *Pending {
	pend := NewPending()
	ev := Event{
		Dir:     dir,
		Data:    data,
		Seq:     p.clock.next(),
		Pending: pend,
	}
	if !p.queue.enqueue(ev) {
		pend.Complete(ErrClosed)
	}
	return pend
}

// loop dequeues and dispatches events until the queue is closed and empty.
func (p *Pipeline) loop() {
	defer close(p.loopDone)

	for {
		ev, ok := p.queue.tryDequeue()
		if !ok {
			if p.queue.isClosed() {
				return
			}
			<-p.queue.wait()
			continue
		}
		p.dispatch(ev)
	}
}

func (p *Pipeline) dispatch(ev Event) {
	// A panicking handler must not take the loop down with it; the fault
	// lands on the event's Pending like any other handler error.
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline: handler panic: %v", r)
			p.logger.Error("handler panicked", "seq", ev.Seq, "dir", ev.Dir, "panic", r)
			ev.Pending.Complete(err)
		}
	}()

	p.logger.Debug("dispatch", "seq", ev.Seq, "dir", ev.Dir, "bytes", len(ev.Data))

	switch ev.Dir {
	case DirInbound:
		p.handler.ServeInbound(ev.Data, ev.Pending)
	case DirOutbound:
		p.handler.ServeOutbound(ev.Data, ev.Pending)
	default:
		ev.Pending.Complete(fmt.Errorf("pipeline: unknown direction %d", ev.Dir))
	}
}

// EmitWire implements Emitter.
func (p *Pipeline) EmitWire(b []byte) {
	p.tapMu.RLock()
	tap := p.wireTap
	p.tapMu.RUnlock()
	if tap != nil {
		tap(b)
	}
}

// EmitApp implements Emitter.
func (p *Pipeline) EmitApp(b []byte) {
	p.tapMu.RLock()
	tap := p.appTap
	p.tapMu.RUnlock()
	if tap != nil {
		tap(b)
	}
}
