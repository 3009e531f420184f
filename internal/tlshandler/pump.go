package tlshandler

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/wirecheck/wirecheck/internal/bytebuf"
)

type pumpAddr string

func (a pumpAddr) Network() string { return "mem" }
func (a pumpAddr) String() string  { return string(a) }

type pumpTimeout struct{}

func (pumpTimeout) Error() string   { return "tlshandler: pump read deadline exceeded" }
func (pumpTimeout) Timeout() bool   { return true }
func (pumpTimeout) Temporary() bool { return true }

// pump is the blocking net.Conn the handler's internal tls.Conn sits on.
// Its read side is fed by pipeline inbound events; its write side hands
// produced records straight to the handler's wire emitter.
//
// The pump is where the handler's own blocking world meets the pipeline's
// push world, mirroring (in miniature, and without strategies or pending
// tracking) what the mediation adapter does for the reference engine.
type pump struct {
	onWrite func(p []byte)

	mu       sync.Mutex
	inbound  *bytebuf.Accumulator
	signal   chan struct{}
	closed   bool
	deadline time.Time
}

func newPump(onWrite func(p []byte)) *pump {
	return &pump{
		onWrite: onWrite,
		inbound: bytebuf.New(),
		signal:  make(chan struct{}, 1),
	}
}

// Push feeds ciphertext into the read side. Safe from any goroutine.
func (p *pump) Push(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.inbound.Append(data)
	p.wakeLocked()
}

// wakeLocked nudges a blocked reader. Caller holds p.mu.
func (p *pump) wakeLocked() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Read blocks until pushed bytes are available, the pump closes (io.EOF),
// or the read deadline passes. Unlike the mediation adapter there is no
// default budget: the TLS state machine legitimately idles here between
// records, and scenario-level timeouts bound the overall wait.
func (p *pump) Read(b []byte) (int, error) {
	for {
		p.mu.Lock()
		if n := p.inbound.Consume(b); n > 0 {
			p.mu.Unlock()
			return n, nil
		}
		if p.closed {
			p.mu.Unlock()
			return 0, io.EOF
		}
		deadline := p.deadline
		p.mu.Unlock()

		if deadline.IsZero() {
			<-p.signal
			continue
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, pumpTimeout{}
		}
		timer := time.NewTimer(wait)
		select {
		case <-p.signal:
			timer.Stop()
		case <-timer.C:
			return 0, pumpTimeout{}
		}
	}
}

// Write hands a copy of b to the wire emitter. Never blocks.
func (p *pump) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, net.ErrClosed
	}
	p.mu.Unlock()

	cp := make([]byte, len(b))
	copy(cp, b)
	p.onWrite(cp)
	return len(b), nil
}

// Close wakes any blocked reader; subsequent reads return io.EOF.
func (p *pump) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.wakeLocked()
	return nil
}

func (p *pump) LocalAddr() net.Addr  { return pumpAddr("handler") }
func (p *pump) RemoteAddr() net.Addr { return pumpAddr("wire") }

func (p *pump) SetDeadline(t time.Time) error {
	return p.SetReadDeadline(t)
}

func (p *pump) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = t
	// Re-evaluate the wait with the new deadline.
	p.wakeLocked()
	return nil
}

func (p *pump) SetWriteDeadline(time.Time) error { return nil }
