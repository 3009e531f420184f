// Package tlshandler implements the record-layer security handler hosted
// by the pipeline: an event-driven TLS stage that decrypts inbound wire
// records into application bytes and frames outbound application bytes
// into records.
//
// Internally the handler owns a blocking *tls.Conn over an in-memory pump
// conn. Two handler-owned goroutines bridge the models: a reader drives
// the TLS state machine (handshake included) and emits plaintext to the
// app tap; a writer serializes outbound writes and lets produced records
// flow out through the pump to the wire tap. Pipeline events themselves
// never block: inbound bytes are pushed into the pump, outbound writes are
// queued for the writer with their Pending completed once the TLS write
// settles.
package tlshandler

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/wirecheck/wirecheck/internal/pipeline"
)

// Role selects which side of the TLS conversation the handler plays.
type Role int

const (
	RoleClient Role = iota + 1
	RoleServer
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// writeQueueDepth bounds deferred outbound writes. Scenarios submit at
// most a few hundred frames; overflowing this indicates a stuck TLS write.
const writeQueueDepth = 1024

// Config parameterizes a Handler.
type Config struct {
	// Role is the handler's side of the conversation (the reference
	// engine plays the complement).
	Role Role

	// TLS is the role-appropriate configuration: certificates for the
	// server side, trust settings and versions for both.
	TLS *tls.Config

	// Logger defaults to a discard handler.
	Logger *slog.Logger
}

type outbound struct {
	data []byte
	done *pipeline.Pending
}

// Handler is the record-layer stage under test.
type Handler struct {
	cfg    Config
	logger *slog.Logger

	pump   *pump
	conn   *tls.Conn
	writeQ chan outbound

	readerDone chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once

	mu    sync.Mutex
	fault error
}

// New creates a Handler. It does nothing until the pipeline calls Start.
func New(cfg Config) (*Handler, error) {
	if cfg.Role != RoleClient && cfg.Role != RoleServer {
		return nil, fmt.Errorf("tlshandler: invalid role %d", cfg.Role)
	}
	if cfg.TLS == nil {
		return nil, errors.New("tlshandler: nil TLS config")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		cfg:        cfg,
		logger:     logger,
		writeQ:     make(chan outbound, writeQueueDepth),
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}, nil
}

// Start implements pipeline.Handler.
func (h *Handler) Start(e pipeline.Emitter) error {
	h.pump = newPump(e.EmitWire)

	switch h.cfg.Role {
	case RoleClient:
		h.conn = tls.Client(h.pump, h.cfg.TLS)
	case RoleServer:
		h.conn = tls.Server(h.pump, h.cfg.TLS)
	}

	go h.readLoop(e)
	go h.writeLoop()

	h.logger.Debug("handler started", "role", h.cfg.Role)
	return nil
}

// ServeInbound implements pipeline.Handler: wire bytes are pushed into the
// pump, where the reader goroutine's TLS state machine picks them up. An
// empty fragment is accepted and is a no-op.
func (h *Handler) ServeInbound(data []byte, done *pipeline.Pending) {
	if err := h.faultErr(); err != nil {
		done.Complete(err)
		return
	}
	h.pump.Push(data)
	done.Complete(nil)
}

// ServeOutbound implements pipeline.Handler: the write is queued for the
// writer goroutine and its Pending settles when the TLS write does.
// Zero-length writes complete successfully without producing records.
func (h *Handler) ServeOutbound(data []byte, done *pipeline.Pending) {
	if err := h.faultErr(); err != nil {
		done.Complete(err)
		return
	}
	select {
	case h.writeQ <- outbound{data: data, done: done}:
	default:
		done.Complete(errors.New("tlshandler: write queue full"))
	}
}

// Close implements pipeline.Handler. The pipeline has drained its queue by
// the time this runs, so no further Serve calls arrive.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() {
		if h.conn == nil {
			// Never started.
			return
		}
		// Close the TLS conn first so close_notify can still traverse the
		// pump, then tear the pump down to unblock the reader.
		_ = h.conn.Close()
		_ = h.pump.Close()
		close(h.writeQ)
		<-h.readerDone
		<-h.writerDone
	})
	return nil
}

// readLoop drives the TLS state machine. The first Read performs the
// handshake; every successful Read emits decrypted application bytes.
func (h *Handler) readLoop(e pipeline.Emitter) {
	defer close(h.readerDone)

	buf := make([]byte, 32*1024)
	for {
		n, err := h.conn.Read(buf)
		if n > 0 {
			e.EmitApp(buf[:n])
		}
		if err != nil {
			if !isClosedErr(err) {
				h.setFault(fmt.Errorf("tlshandler: read: %w", err))
				h.logger.Debug("reader stopped on fault", "error", err)
			}
			return
		}
	}
}

// writeLoop serializes outbound TLS writes in submission order.
func (h *Handler) writeLoop() {
	defer close(h.writerDone)

	for ob := range h.writeQ {
		if err := h.faultErr(); err != nil {
			ob.done.Complete(err)
			continue
		}
		if len(ob.data) == 0 {
			ob.done.Complete(nil)
			continue
		}
		_, err := h.conn.Write(ob.data)
		if err != nil {
			err = fmt.Errorf("tlshandler: write: %w", err)
			h.setFault(err)
		}
		ob.done.Complete(err)
	}
}

func (h *Handler) setFault(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fault == nil {
		h.fault = err
	}
}

func (h *Handler) faultErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fault
}

// isClosedErr reports whether err is an orderly shutdown artifact rather
// than a protocol fault.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
