package tlshandler

import (
	"bytes"
	"crypto/tls"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecheck/wirecheck/internal/mediator"
	"github.com/wirecheck/wirecheck/internal/pipeline"
	"github.com/wirecheck/wirecheck/internal/poller"
	"github.com/wirecheck/wirecheck/internal/strategy"
	"github.com/wirecheck/wirecheck/internal/testutil"
)

// link wires a server-role handler into a pipeline and hangs a raw TLS
// client on the other end of the simulated wire via a mediation adapter.
type link struct {
	pipe *pipeline.Pipeline
	med  *mediator.Conn
	ref  *tls.Conn

	mu  sync.Mutex
	app bytes.Buffer // plaintext the handler delivered
}

func newLink(t *testing.T, version uint16) *link {
	t.Helper()

	cert, err := testutil.SelfSignedCert()
	require.NoError(t, err)

	h, err := New(Config{
		Role: RoleServer,
		TLS: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   version,
			MaxVersion:   version,
		},
	})
	require.NoError(t, err)

	l := &link{pipe: pipeline.New(h)}
	l.med = mediator.New(
		strategy.NewImmediate(strategy.SinkFunc(func(p []byte) *pipeline.Pending {
			return l.pipe.FireInbound(p)
		})),
		mediator.WithReadTimeout(2*time.Second),
	)

	l.pipe.OnWire(l.med.Push)
	l.pipe.OnApp(func(p []byte) {
		l.mu.Lock()
		l.app.Write(p)
		l.mu.Unlock()
	})
	require.NoError(t, l.pipe.Start())

	l.ref = tls.Client(l.med, &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         version,
		MaxVersion:         version,
	})
	t.Cleanup(func() {
		_ = l.ref.Close()
		_ = l.pipe.Close()
		_ = l.med.Close()
	})
	return l
}

func (l *link) appBytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.app.Bytes()...)
}

func TestHandler_HandshakeCompletes(t *testing.T) {
	for _, tc := range []struct {
		name    string
		version uint16
	}{
		{"tls12", tls.VersionTLS12},
		{"tls13", tls.VersionTLS13},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := newLink(t, tc.version)
			require.NoError(t, l.ref.Handshake(), "handshake through the pipeline must complete")
			assert.Equal(t, tc.version, l.ref.ConnectionState().Version)
		})
	}
}

func TestHandler_DecryptsInboundRecords(t *testing.T) {
	l := newLink(t, tls.VersionTLS13)
	require.NoError(t, l.ref.Handshake())

	want := []byte("application payload crossing the record layer")
	_, err := l.ref.Write(want)
	require.NoError(t, err)

	require.NoError(t, poller.Await(func() (bool, error) {
		return len(l.appBytes()) >= len(want), nil
	}, 0, 2*time.Second))
	assert.Equal(t, want, l.appBytes())
}

func TestHandler_EncryptsOutboundWrites(t *testing.T) {
	l := newLink(t, tls.VersionTLS13)
	require.NoError(t, l.ref.Handshake())

	want := []byte("handler-origin plaintext")
	require.NoError(t, l.pipe.WriteOutbound(want).Await(2*time.Second))

	buf := make([]byte, len(want))
	require.NoError(t, l.ref.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got []byte
	for len(got) < len(want) {
		n, err := l.ref.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, want, got)
}

func TestHandler_ZeroLengthOutboundCompletes(t *testing.T) {
	l := newLink(t, tls.VersionTLS13)
	require.NoError(t, l.ref.Handshake())

	assert.NoError(t, l.pipe.WriteOutbound(nil).Await(2*time.Second))
}

func TestHandler_EmptyInboundFragmentAccepted(t *testing.T) {
	l := newLink(t, tls.VersionTLS13)
	require.NoError(t, l.ref.Handshake())

	assert.NoError(t, l.pipe.FireInbound([]byte{}).Await(2*time.Second))
}

func TestHandler_GarbageRecordFaults(t *testing.T) {
	l := newLink(t, tls.VersionTLS13)
	require.NoError(t, l.ref.Handshake())

	// A corrupt record kills the TLS session; the fault must surface on a
	// later pipeline write rather than vanish.
	garbage := bytes.Repeat([]byte{0xFF}, 64)
	require.NoError(t, l.pipe.FireInbound(garbage).Await(2*time.Second),
		"injection itself is accepted; the fault is asynchronous")

	err := poller.Await(func() (bool, error) {
		werr := l.pipe.WriteOutbound([]byte("probe")).Await(time.Second)
		return werr != nil, nil
	}, 10*time.Millisecond, 2*time.Second)
	assert.NoError(t, err, "fault must eventually surface on outbound writes")
}

func TestHandler_InvalidConfig(t *testing.T) {
	_, err := New(Config{Role: RoleClient})
	assert.Error(t, err, "nil TLS config rejected")

	_, err = New(Config{TLS: &tls.Config{}})
	assert.Error(t, err, "missing role rejected")
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "client", RoleClient.String())
	assert.Equal(t, "server", RoleServer.String())
}
