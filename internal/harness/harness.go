package harness

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wirecheck/wirecheck/internal/bytebuf"
	"github.com/wirecheck/wirecheck/internal/mediator"
	"github.com/wirecheck/wirecheck/internal/pipeline"
	"github.com/wirecheck/wirecheck/internal/poller"
	"github.com/wirecheck/wirecheck/internal/strategy"
	"github.com/wirecheck/wirecheck/internal/testutil"
	"github.com/wirecheck/wirecheck/internal/tlshandler"
)

// Per-phase budgets. Every suspend point in a run is bounded; a scenario
// can hang for at most the sum of these.
const (
	handshakeTimeout = 10 * time.Second
	transferTimeout  = 10 * time.Second
	pollInterval     = poller.DefaultInterval
)

// Result is the outcome of one scenario run.
type Result struct {
	// RunID uniquely identifies this execution (fresh per run).
	RunID string `json:"run_id"`

	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Passed indicates overall success.
	Passed bool `json:"passed"`

	// Errors contains failure messages; empty when Passed.
	Errors []string `json:"errors,omitempty"`

	// Failure is the categorized scenario error, when one occurred.
	Failure *ScenarioError `json:"-"`

	BytesSent     int           `json:"bytes_sent"`
	BytesReceived int           `json:"bytes_received"`
	Frames        int           `json:"frames"`
	Duration      time.Duration `json:"duration_ns"`
}

// NewResult creates a passing Result for scenario name.
func NewResult(name string) *Result {
	return &Result{
		RunID:    uuid.NewString(),
		Scenario: name,
		Passed:   true,
	}
}

// fail records a scenario failure.
func (r *Result) fail(err *ScenarioError) {
	r.Passed = false
	r.Errors = append(r.Errors, err.Error())
	if r.Failure == nil {
		r.Failure = err
	}
}

// RunOption configures a run.
type RunOption func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the run's logger. Defaults to a discard handler.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = l }
}

// recvBuf serializes tap appends against driver reads, per the shared
// accumulator discipline: exactly two call sites mutate it and they run on
// different goroutines.
type recvBuf struct {
	mu  sync.Mutex
	acc *bytebuf.Accumulator
}

func newRecvBuf() *recvBuf {
	return &recvBuf{acc: bytebuf.New()}
}

func (b *recvBuf) tap(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acc.Append(p)
}

func (b *recvBuf) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acc.Readable()
}

func (b *recvBuf) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acc.Bytes()
}

// Run executes one scenario and returns its Result.
//
// Every component is constructed fresh for the run, so failures cannot
// corrupt state shared with other scenarios. The returned error is
// reserved for harness-infrastructure problems (certificate generation,
// invalid configuration); scenario failures land in the Result.
func Run(sc *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("harness: invalid scenario: %w", err)
	}

	res := NewResult(sc.Name)
	res.Frames = sc.FrameCount()
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	version, err := tlsVersion(sc.Version)
	if err != nil {
		return nil, err
	}
	cert, err := testutil.SelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	// The handler under test plays the complement of the reference role.
	handler, err := tlshandler.New(tlshandler.Config{
		Role:   complementRole(sc.Role),
		TLS:    partyTLSConfig(complementRole(sc.Role) == tlshandler.RoleServer, cert, version),
		Logger: cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	pipe := pipeline.New(handler, pipeline.WithLogger(cfg.logger))

	recv := newRecvBuf()
	strat := sc.Strategy.build(strategy.SinkFunc(func(p []byte) *pipeline.Pending {
		return pipe.FireInbound(p)
	}))
	med := mediator.New(strat,
		mediator.WithReadTimeout(transferTimeout),
		mediator.WithAwaitTimeout(transferTimeout),
		mediator.WithLogger(cfg.logger),
	)

	pipe.OnWire(med.Push)
	pipe.OnApp(recv.tap)

	if err := pipe.Start(); err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	defer func() {
		_ = pipe.Close()
		_ = med.Close()
	}()

	// Reference engine on the adapter, playing the scenario's role.
	var ref *tls.Conn
	if sc.Role == RoleServer {
		ref = tls.Server(med, partyTLSConfig(true, cert, version))
	} else {
		ref = tls.Client(med, partyTLSConfig(false, cert, version))
	}
	defer func() { _ = ref.Close() }()

	// Handshake is the first real correctness check: a hang or rejection
	// here is a scenario failure in its own right.
	hctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	if err := ref.HandshakeContext(hctx); err != nil {
		cfg.logger.Debug("handshake failed", "run_id", res.RunID, "error", err)
		res.fail(classifyHandshake(sc.Name, err))
		return res, nil
	}
	cfg.logger.Debug("handshake complete",
		"run_id", res.RunID,
		"version", sc.Version,
		"reference_role", sc.Role,
	)

	rng := testutil.NewSeeded(sc.Seed)
	switch sc.Direction {
	case DirPipelineToEngine:
		runPipelineToEngine(sc, res, pipe, ref, rng)
	default:
		runEngineToPipeline(sc, res, med, ref, recv, rng)
	}

	cfg.logger.Info("scenario finished",
		"run_id", res.RunID,
		"scenario", sc.Name,
		"passed", res.Passed,
		"bytes_sent", res.BytesSent,
		"bytes_received", res.BytesReceived,
	)
	return res, nil
}

// runEngineToPipeline streams frames from the reference engine through the
// write strategy into the pipeline and collects decrypted bytes at the app
// tap.
func runEngineToPipeline(sc *Scenario, res *Result, med *mediator.Conn, ref *tls.Conn, recv *recvBuf, rng *rand.Rand) {
	var sent bytes.Buffer
	for i, f := range sc.Frames {
		if f.Flush {
			med.Flush()
			continue
		}
		payload := testutil.Payload(rng, f.Len)
		sent.Write(payload)
		if _, err := ref.Write(payload); err != nil {
			res.fail(classify(sc.Name, fmt.Sprintf("engine write of frame %d failed", i), err))
			return
		}
	}

	// Final drain: no byte may stay staged, and every asynchronous send
	// must settle before the comparison.
	med.Flush()
	if err := med.AwaitPending(); err != nil {
		res.fail(classify(sc.Name, "awaiting pending writes", err))
		return
	}

	want := sent.Bytes()
	res.BytesSent = len(want)

	if err := poller.Await(func() (bool, error) {
		return recv.size() >= len(want), nil
	}, pollInterval, transferTimeout); err != nil {
		res.BytesReceived = recv.size()
		res.fail(classify(sc.Name, "draining pipeline output", err))
		return
	}

	got := recv.bytes()
	res.BytesReceived = len(got)
	compare(sc.Name, res, want, got)
}

// runPipelineToEngine streams frames into the pipeline's outbound path and
// reads the framed result back through the reference engine.
func runPipelineToEngine(sc *Scenario, res *Result, pipe *pipeline.Pipeline, ref *tls.Conn, rng *rand.Rand) {
	var sent bytes.Buffer
	var pends []*pipeline.Pending
	for _, f := range sc.Frames {
		if f.Flush {
			// Flush markers shape the inbound strategy only; outbound
			// frames are released by the handler itself.
			continue
		}
		payload := testutil.Payload(rng, f.Len)
		sent.Write(payload)
		pends = append(pends, pipe.WriteOutbound(payload))
	}

	for i, p := range pends {
		if err := p.Await(transferTimeout); err != nil {
			res.fail(classify(sc.Name, fmt.Sprintf("pipeline write %d failed", i), err))
			return
		}
	}

	want := sent.Bytes()
	res.BytesSent = len(want)

	_ = ref.SetReadDeadline(time.Now().Add(transferTimeout))
	var got []byte
	buf := make([]byte, 32*1024)
	for len(got) < len(want) {
		n, err := ref.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			res.BytesReceived = len(got)
			res.fail(classify(sc.Name, "engine read", err))
			return
		}
	}

	res.BytesReceived = len(got)
	compare(sc.Name, res, want, got)
}

// compare asserts byte-for-byte equality, failing the scenario with a
// hex-dump diff on mismatch.
func compare(name string, res *Result, want, got []byte) {
	if bytes.Equal(want, got) {
		return
	}
	res.fail(&ScenarioError{
		Code:     CodeMismatch,
		Scenario: name,
		Message:  fmt.Sprintf("received bytes differ from sent (%d vs %d)", len(got), len(want)),
		Diff:     DiffHex(want, got),
	})
}

func tlsVersion(v string) (uint16, error) {
	switch v {
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("harness: unsupported protocol version %q", v)
	}
}

func complementRole(referenceRole string) tlshandler.Role {
	if referenceRole == RoleClient {
		return tlshandler.RoleServer
	}
	return tlshandler.RoleClient
}

// partyTLSConfig builds one side's TLS configuration. Peer identity is
// always resolved as trusted: certificate validation is bypassed for test
// purposes.
func partyTLSConfig(server bool, cert tls.Certificate, version uint16) *tls.Config {
	cfg := &tls.Config{
		MinVersion: version,
		MaxVersion: version,
	}
	if server {
		cfg.Certificates = []tls.Certificate{cert}
	} else {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
