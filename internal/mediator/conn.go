// Package mediator bridges a blocking-stream consumer to the event-driven
// pipeline under test.
//
// A Conn implements net.Conn so the reference engine (crypto/tls) can sit
// directly on top of it. Reads block the calling goroutine until the
// pipeline's wire tap pushes bytes in; writes delegate to the configured
// Write Strategy and return promptly, leaving the resulting Pending writes
// queued for a collective await.
//
// The one cross-direction ordering rule lives here: before blocking, Read
// first awaits any unresolved Pending writes from prior Write calls. The
// data a read is waiting for is often the pipeline's response to a write
// still sitting in the event queue (a handshake reply, most notably);
// blocking ahead of that write would deadlock the scenario.
package mediator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wirecheck/wirecheck/internal/bytebuf"
	"github.com/wirecheck/wirecheck/internal/pipeline"
	"github.com/wirecheck/wirecheck/internal/strategy"
)

// DefaultReadTimeout bounds a blocking Read when no explicit deadline is
// set. Every suspend point in a scenario carries a timeout; there is no
// infinite wait anywhere.
const DefaultReadTimeout = 5 * time.Second

// DefaultAwaitTimeout bounds the collective wait for queued Pending
// writes.
const DefaultAwaitTimeout = 5 * time.Second

// timeoutError satisfies net.Error with Timeout() == true, which is how
// crypto/tls distinguishes deadline expiry from a dead transport.
type timeoutError struct {
	op string
}

func (e *timeoutError) Error() string   { return "mediator: " + e.op + " timed out" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// IsTimeout reports whether err is a mediator timeout.
func IsTimeout(err error) bool {
	var te *timeoutError
	return errors.As(err, &te)
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// Conn is the blocking-stream-shaped adapter handed to the reference
// engine. One Conn spans one handshake-and-transfer scenario.
type Conn struct {
	strat  strategy.Strategy
	logger *slog.Logger

	mu           sync.Mutex
	inbound      *bytebuf.Accumulator
	signal       chan struct{}
	closed       bool
	readDeadline time.Time

	readTimeout  time.Duration
	awaitTimeout time.Duration

	pendMu  sync.Mutex
	pending []*pipeline.Pending
}

// Option configures a Conn.
type Option func(*Conn)

// WithReadTimeout sets the default blocking-read budget.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) { c.readTimeout = d }
}

// WithAwaitTimeout sets the budget for awaiting queued Pending writes.
func WithAwaitTimeout(d time.Duration) Option {
	return func(c *Conn) { c.awaitTimeout = d }
}

// WithLogger sets the Conn's logger. Defaults to a discard handler.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// New creates a Conn whose write path releases bytes through strat.
// The Conn owns the strategy: Flush and Close forward to it.
func New(strat strategy.Strategy, opts ...Option) *Conn {
	c := &Conn{
		strat:        strat,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		inbound:      bytebuf.New(),
		signal:       make(chan struct{}, 1),
		readTimeout:  DefaultReadTimeout,
		awaitTimeout: DefaultAwaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push delivers pipeline-sourced bytes to the read side. This is the
// producer call site wired to the pipeline's wire tap; it may run on any
// goroutine. Pushes after Close are dropped.
func (c *Conn) Push(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.inbound.Append(p)

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// Read consumes inbound bytes, blocking until data is available, the read
// deadline passes (net.Error timeout), or the Conn closes (io.EOF).
//
// When the accumulator is empty, Read first awaits any unresolved Pending
// writes so that data elicited by its own prior writes can arrive; a
// pipeline fault surfacing there fails the read immediately instead of
// masquerading as a timeout.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if n := c.inbound.Consume(p); n > 0 {
		c.mu.Unlock()
		return n, nil
	}
	if c.closed {
		c.mu.Unlock()
		return 0, io.EOF
	}
	deadline := c.readDeadline
	c.mu.Unlock()

	if err := c.AwaitPending(); err != nil {
		return 0, err
	}

	if deadline.IsZero() {
		deadline = time.Now().Add(c.readTimeout)
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		c.mu.Lock()
		if n := c.inbound.Consume(p); n > 0 {
			c.mu.Unlock()
			return n, nil
		}
		if c.closed {
			c.mu.Unlock()
			return 0, io.EOF
		}
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-timer.C:
			c.logger.Debug("read timed out", "deadline", deadline)
			return 0, &timeoutError{op: "read"}
		}
	}
}

// Write hands p to the Write Strategy, marks the logical write boundary
// (one blocking-stream write is one boundary), queues the resulting
// Pending, and returns promptly. The pipeline's acceptance is observed
// later via AwaitPending, never here: the reference engine expects Write
// to return without waiting on the peer.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, net.ErrClosed
	}
	c.mu.Unlock()

	pend := c.strat.Write(p)
	c.strat.MarkBoundary()

	c.pendMu.Lock()
	c.pending = append(c.pending, pend)
	c.pendMu.Unlock()

	return len(p), nil
}

// AwaitPending waits for every queued Pending write to settle. The first
// pipeline fault is returned as-is; exceeding the await budget returns a
// timeout error. Settled writes are removed from the queue either way.
func (c *Conn) AwaitPending() error {
	c.pendMu.Lock()
	pends := c.pending
	c.pending = nil
	c.pendMu.Unlock()

	deadline := time.Now().Add(c.awaitTimeout)
	for _, p := range pends {
		remain := time.Until(deadline)
		if remain <= 0 {
			return &timeoutError{op: "await pending writes"}
		}
		if err := p.Await(remain); err != nil {
			if errors.Is(err, pipeline.ErrAwaitTimeout) {
				return &timeoutError{op: "await pending writes"}
			}
			return fmt.Errorf("mediator: pending write failed: %w", err)
		}
	}
	return nil
}

// PendingCount reports the number of not-yet-awaited Pending writes.
func (c *Conn) PendingCount() int {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	return len(c.pending)
}

// Flush forces the Write Strategy to release any staged bytes.
func (c *Conn) Flush() {
	c.strat.Flush()
}

// Close closes the strategy (flushing its remainder), wakes any blocked
// reader, and makes subsequent reads return io.EOF.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	select {
	case c.signal <- struct{}{}:
	default:
	}
	c.mu.Unlock()

	return c.strat.Close()
}

// LocalAddr implements net.Conn.
func (c *Conn) LocalAddr() net.Addr { return memAddr("reference-engine") }

// RemoteAddr implements net.Conn.
func (c *Conn) RemoteAddr() net.Addr { return memAddr("pipeline") }

// SetDeadline implements net.Conn. Only the read side blocks, so this is
// equivalent to SetReadDeadline.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

// SetReadDeadline implements net.Conn. A zero time reverts to the default
// read timeout.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

// SetWriteDeadline implements net.Conn. Writes never block, so deadlines
// on them are meaningless.
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }
