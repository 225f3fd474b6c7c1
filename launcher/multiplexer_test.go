package launcher

import (
	"sync"
	"testing"
	"time"

	"github.com/arcflow/launchbridge/launcher/wire"
)

// TestMultiplexer_DuplicateRegister covers registering the same token
// twice.
func TestMultiplexer_DuplicateRegister(t *testing.T) {
	mux := NewMultiplexer()
	token := mux.NewToken()
	if _, err := mux.Register(token, ProcessModeReader); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := mux.Register(token, ProcessModeReader); err != ErrTokenExists {
		t.Fatalf("second Register err = %v, want ErrTokenExists", err)
	}
}

// TestMultiplexer_UnknownTokenDropped covers the boundary case where an
// inbound packet for an unregistered token must be dropped silently, not
// panic.
func TestMultiplexer_UnknownTokenDropped(t *testing.T) {
	h := newHarness(t)
	caller, _ := h.mux.Register(h.mux.NewToken(), ProcessModeReader)
	caller.Start("echo", nil, nil)
	token := h.recv().(*wire.StartProcessPacket).PacketToken()
	h.mux.Unregister(Token(token))

	// Must not panic even though the endpoint backing this token is gone.
	h.send(wire.NewProcessStartedPacket(token, 1))
	time.Sleep(20 * time.Millisecond)

	if caller.State() != Starting {
		t.Fatalf("state = %v, want Starting (unregistered endpoint must not observe it)", caller.State())
	}
}

// TestMultiplexer_WriteOnNonRunningFails covers calling Write before the
// process has started.
func TestMultiplexer_WriteOnNonRunningFails(t *testing.T) {
	mux := NewMultiplexer()
	caller, _ := mux.Register(mux.NewToken(), ProcessModeWriter)
	if n := caller.Write([]byte("hi")); n != -1 {
		t.Fatalf("Write on NotRunning = %d, want -1", n)
	}
}

// TestWaitFor_ZeroMillisecondsPolls covers a non-positive timeout acting
// as a non-blocking poll.
func TestWaitFor_ZeroMillisecondsPolls(t *testing.T) {
	h := newHarness(t)
	caller, _ := h.mux.Register(h.mux.NewToken(), ProcessModeReader)

	if caller.WaitForStarted(0) {
		t.Fatalf("WaitForStarted(0) = true before anything queued")
	}

	caller.Start("echo", nil, nil)
	token := h.recv().(*wire.StartProcessPacket).PacketToken()
	h.send(wire.NewProcessStartedPacket(token, 1))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if caller.WaitForStarted(0) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("WaitForStarted(0) never observed the queued Started record")
}

// TestConcurrency_ManyProcesses runs N caller goroutines each driving one
// process to completion concurrently: every started process finishes
// exactly once and no waiter deadlocks.
func TestConcurrency_ManyProcesses(t *testing.T) {
	h := newHarness(t)
	const n = 8

	var wg sync.WaitGroup
	var mu sync.Mutex
	startedCount, finishedCount := 0, 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller, err := h.mux.Register(h.mux.NewToken(), ProcessModeReader)
			if err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			caller.OnStarted = func() {
				mu.Lock()
				startedCount++
				mu.Unlock()
			}
			caller.OnFinished = func(int32, ExitStatus) {
				mu.Lock()
				finishedCount++
				mu.Unlock()
			}
			if err := caller.Start("echo", []string{"hi"}, nil); err != nil {
				t.Errorf("Start: %v", err)
				return
			}
			if !caller.WaitForFinished(5000) {
				t.Errorf("WaitForFinished timed out for goroutine %d", i)
			}
		}(i)
	}

	// Helper side: answer every StartProcess with Started then Finished.
	go func() {
		for i := 0; i < n; i++ {
			pkt, err := h.tryRecv(5 * time.Second)
			if err != nil {
				t.Errorf("tryRecv: %v", err)
				return
			}
			sp, ok := pkt.(*wire.StartProcessPacket)
			if !ok {
				t.Errorf("unexpected packet type %T", pkt)
				return
			}
			token := sp.PacketToken()
			if err := h.trySend(wire.NewProcessStartedPacket(token, int32(1000+i))); err != nil {
				t.Errorf("trySend started: %v", err)
				return
			}
			if err := h.trySend(wire.NewProcessFinishedPacket(token)); err != nil {
				t.Errorf("trySend finished: %v", err)
				return
			}
		}
	}()

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if startedCount != n || finishedCount != n {
		t.Fatalf("started=%d finished=%d, want %d each", startedCount, finishedCount, n)
	}
}
