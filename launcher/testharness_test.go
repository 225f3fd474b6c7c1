package launcher

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/arcflow/launchbridge/launcher/wire"
)

// harness drives a Multiplexer against the "helper" end of an in-memory
// net.Pipe, playing the role of the external helper process for tests,
// since a Unix domain socket and net.Pipe satisfy the same
// io.ReadWriteCloser contract the Multiplexer actually depends on.
type harness struct {
	t      *testing.T
	mux    *Multiplexer
	helper net.Conn
	parser *wire.Parser
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mux := NewMultiplexer()
	client, helper := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = mux.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	mux.SetConn(client)

	return &harness{t: t, mux: mux, helper: helper, parser: wire.NewParser()}
}

// newUnreadyHarness starts the multiplexer's launcher context but never
// binds a socket, for tests that exercise the "not ready yet" paths.
func newUnreadyHarness(t *testing.T) *Multiplexer {
	t.Helper()
	mux := NewMultiplexer()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = mux.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	return mux
}

// send writes p onto the wire as the helper peer would. Only safe to call
// from the goroutine running the test.
func (h *harness) send(p wire.Packet) {
	h.t.Helper()
	if _, err := h.helper.Write(wire.Serialize(p)); err != nil {
		h.t.Fatalf("helper write: %v", err)
	}
}

// trySend is the Fatalf-free counterpart of send for background helper
// goroutines.
func (h *harness) trySend(p wire.Packet) error {
	_, err := h.helper.Write(wire.Serialize(p))
	return err
}

// sendRaw writes raw bytes, for tests that need to corrupt the stream.
func (h *harness) sendRaw(b []byte) {
	h.t.Helper()
	if _, err := h.helper.Write(b); err != nil {
		h.t.Fatalf("helper write: %v", err)
	}
}

// recv reads the next packet the multiplexer wrote, as the helper peer
// would observe it. It is only safe to call from the goroutine running
// the test, since it reports failures via t.Fatalf.
func (h *harness) recv() wire.Packet {
	h.t.Helper()
	pkt, err := h.tryRecv(2 * time.Second)
	if err != nil {
		h.t.Fatalf("recv: %v", err)
	}
	return pkt
}

// tryRecv is the Fatalf-free counterpart of recv, safe to call from a
// background goroutine a test spawned to play the helper side.
func (h *harness) tryRecv(timeout time.Duration) (wire.Packet, error) {
	h.helper.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 4096)
	for {
		pkt, err := h.parser.Next()
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
		n, err := h.helper.Read(buf)
		if err != nil {
			return nil, err
		}
		h.parser.Feed(buf[:n])
	}
}
