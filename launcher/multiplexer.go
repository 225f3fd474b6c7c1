package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arcflow/launchbridge/launcher/wire"
)

// Multiplexer owns the single duplex byte stream shared by every
// registered process in one host: effectively singleton state, modeled
// here as an explicit value a host constructs and passes into every
// Register call, rather than a hidden global.
type Multiplexer struct {
	mu        sync.Mutex
	conn      io.ReadWriteCloser
	ready     bool
	started   bool
	errored   bool
	endpoints map[Token]*launcherEndpoint
	pending   [][]byte

	nextToken atomic.Uint64

	writeWake chan struct{}

	onReadyHook func()
	onErrorHook func(error)
}

// NewMultiplexer returns a Multiplexer with no socket bound yet. Run must
// be called before Register'd endpoints can Start.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		endpoints: make(map[Token]*launcherEndpoint),
		writeWake: make(chan struct{}, 1),
	}
}

// OnReady and OnError let a host observe the multiplexer's one-shot edges
// without needing its own polling loop.
func (m *Multiplexer) OnReady(fn func())      { m.onReadyHook = fn }
func (m *Multiplexer) OnError(fn func(error)) { m.onErrorHook = fn }

// NewToken mints a fresh, never-reused Token for this multiplexer's
// lifetime. It is the caller context that calls NewToken and hands the
// result to Register, which is how "token minted by the caller context"
// holds even though the counter itself is multiplexer state.
func (m *Multiplexer) NewToken() Token {
	return Token(m.nextToken.Add(1))
}

// Register creates a new endpoint pair for token and returns the
// caller-side handle. It fails with ErrTokenExists if token is already
// registered.
func (m *Multiplexer) Register(token Token, mode ProcessMode) (*CallerEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.endpoints[token]; exists {
		return nil, ErrTokenExists
	}
	pair := newPairState()
	caller := newCallerEndpoint(token, mode, m, pair)
	m.endpoints[token] = &launcherEndpoint{token: token, pair: pair, caller: caller}
	return caller, nil
}

// Unregister removes token's mapping and severs the endpoint pair. It is
// safe to call from any context.
func (m *Multiplexer) Unregister(token Token) {
	m.mu.Lock()
	le, ok := m.endpoints[token]
	if ok {
		delete(m.endpoints, token)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	le.pair.mu.Lock()
	le.caller = nil
	le.pair.torn = true
	le.pair.mu.Unlock()
}

func (m *Multiplexer) isReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Multiplexer) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// SetConn binds the duplex stream after the helper handshake and emits
// the one-shot ready edge: every registered endpoint gets a chance to
// flush a deferred StartProcess.
func (m *Multiplexer) SetConn(conn io.ReadWriteCloser) {
	m.mu.Lock()
	m.conn = conn
	m.ready = true
	endpoints := make([]*launcherEndpoint, 0, len(m.endpoints))
	for _, le := range m.endpoints {
		endpoints = append(endpoints, le)
	}
	hook := m.onReadyHook
	m.mu.Unlock()

	for _, le := range endpoints {
		le.onReady()
	}
	if hook != nil {
		hook()
	}
}

// sendPacket serializes and enqueues a single packet.
func (m *Multiplexer) sendPacket(p wire.Packet) {
	m.SendData(wire.Serialize(p))
}

// SendData enqueues bytes onto the pending outbound queue under the
// multiplexer mutex; if the queue was empty it wakes the write loop. It
// silently drops once the multiplexer has entered its terminal error
// state.
func (m *Multiplexer) SendData(b []byte) {
	m.mu.Lock()
	if m.errored {
		m.mu.Unlock()
		return
	}
	wasEmpty := len(m.pending) == 0
	m.pending = append(m.pending, b)
	m.mu.Unlock()

	if wasEmpty {
		select {
		case m.writeWake <- struct{}{}:
		default:
		}
	}
}

// Run starts the launcher context: one goroutine parsing inbound frames,
// one draining the outbound queue, sharing a single cancellation via
// errgroup. Run blocks until ctx is cancelled or either loop hits a fatal
// error.
func (m *Multiplexer) Run(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.readLoop(ctx) })
	g.Go(func() error { return m.writeLoop(ctx) })
	return g.Wait()
}

func (m *Multiplexer) readLoop(ctx context.Context) error {
	parser := wire.NewParser()
	buf := make([]byte, 32*1024)
	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
			for {
				pkt, perr := parser.Next()
				if perr != nil {
					wrapped := fmt.Errorf("launcher: decode: %w", perr)
					m.fail(wrapped)
					return wrapped
				}
				if pkt == nil {
					break
				}
				m.dispatch(pkt)
			}
		}
		if err != nil {
			var wrapped error
			if errors.Is(err, io.EOF) {
				wrapped = fmt.Errorf("launcher: peer closed connection: %w", err)
			} else {
				wrapped = fmt.Errorf("launcher: read: %w", err)
			}
			m.fail(wrapped)
			return wrapped
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (m *Multiplexer) dispatch(pkt wire.Packet) {
	m.mu.Lock()
	le, ok := m.endpoints[Token(pkt.PacketToken())]
	m.mu.Unlock()
	if !ok {
		return // unknown token: process was already cancelled and unregistered
	}
	le.handlePacket(pkt)
}

func (m *Multiplexer) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.writeWake:
		}

		for {
			m.mu.Lock()
			if len(m.pending) == 0 {
				m.mu.Unlock()
				break
			}
			b := m.pending[0]
			m.pending = m.pending[1:]
			conn := m.conn
			m.mu.Unlock()

			if conn == nil {
				continue
			}
			if _, err := conn.Write(b); err != nil {
				wrapped := fmt.Errorf("launcher: write: %w", err)
				m.fail(wrapped)
				return wrapped
			}
		}
	}
}

// fail transitions the multiplexer into its one-shot terminal error state,
// fans a synthetic socket error out to every live endpoint, and invokes
// the host's error hook at most once.
func (m *Multiplexer) fail(err error) {
	m.mu.Lock()
	if m.errored {
		m.mu.Unlock()
		return
	}
	m.errored = true
	m.conn = nil
	m.ready = false
	endpoints := make([]*launcherEndpoint, 0, len(m.endpoints))
	for _, le := range m.endpoints {
		endpoints = append(endpoints, le)
	}
	hook := m.onErrorHook
	m.mu.Unlock()

	for _, le := range endpoints {
		le.onSocketError(err)
	}
	if hook != nil {
		hook(err)
	}
}

// Shutdown atomically detaches the socket, writes one Shutdown packet
// with a 1-second budget, then closes the connection unconditionally.
func (m *Multiplexer) Shutdown() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.ready = false
	m.mu.Unlock()
	if conn == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		conn.Write(wire.Serialize(wire.NewShutdownPacket()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	conn.Close()
}
