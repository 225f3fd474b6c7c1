package launcher

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arcflow/launchbridge/launcher/wire"
)

const canceledBeforeStartedMessage = "process was canceled before it was started"

// CallerEndpoint is the user-facing handle onto one helper-managed
// process. It is affined to a single token for its whole lifetime and is
// meant to be driven by exactly one caller-context goroutine at a time —
// concurrent calls from multiple goroutines on the same endpoint are not a
// supported usage.
type CallerEndpoint struct {
	token Token
	id    string

	mux  *Multiplexer
	pair *pairState

	state atomic.Int32 // ProcessState, readable from any goroutine

	// configuration, mutated only from the caller context before Start
	program             string
	arguments           []string
	env                 []string
	workingDir          string
	mode                ProcessMode
	channelMode         ChannelMode
	standardInputFile   string
	belowNormalPriority bool
	nativeArguments     string
	lowPriority         bool
	unixTerminalDisable bool

	forwardedStdout io.Writer
	forwardedStderr io.Writer

	pendingStart *wire.StartProcessPacket // stashed StartProcess awaiting socket ready

	stdout []byte
	stderr []byte

	lastErr    *LaunchError
	exitCode   int32
	exitStatus ExitStatus
	pid        int32

	wake chan struct{}

	// OnErrorOccurred and friends are the user-facing notification hooks;
	// a host sets whichever it cares about before calling Start. They are
	// invoked synchronously from the caller context during Drain.
	OnErrorOccurred           func(kind ErrorKind)
	OnStarted                 func()
	OnReadyReadStandardOutput func()
	OnReadyReadStandardError  func()
	OnFinished                func(exitCode int32, status ExitStatus)
}

func newCallerEndpoint(token Token, mode ProcessMode, mux *Multiplexer, pair *pairState) *CallerEndpoint {
	c := &CallerEndpoint{
		token: token,
		id:    uuid.NewString(),
		mux:   mux,
		pair:  pair,
		mode:  mode,
		wake:  make(chan struct{}, 1),
	}
	c.state.Store(int32(NotRunning))
	return c
}

// ID returns the endpoint's correlation ID. It carries no protocol meaning
// and exists purely so a host can correlate notifications across its own
// logs.
func (c *CallerEndpoint) ID() string { return c.id }

// Configuration setters. All mutate only from the caller context and must
// be called before Start.

func (c *CallerEndpoint) SetWorkingDir(dir string)         { c.workingDir = dir }
func (c *CallerEndpoint) SetEnv(env []string)              { c.env = env }
func (c *CallerEndpoint) SetChannelMode(m ChannelMode)     { c.channelMode = m }
func (c *CallerEndpoint) SetStandardInputFile(path string) { c.standardInputFile = path }
func (c *CallerEndpoint) SetBelowNormalPriority(v bool)    { c.belowNormalPriority = v }
func (c *CallerEndpoint) SetNativeArguments(args string)   { c.nativeArguments = args }
func (c *CallerEndpoint) SetLowPriority(v bool)            { c.lowPriority = v }
func (c *CallerEndpoint) SetUnixTerminalDisabled(v bool)   { c.unixTerminalDisable = v }
func (c *CallerEndpoint) SetForwardedStdout(w io.Writer)   { c.forwardedStdout = w }
func (c *CallerEndpoint) SetForwardedStderr(w io.Writer)   { c.forwardedStderr = w }

// Accessors.

func (c *CallerEndpoint) State() ProcessState    { return ProcessState(c.state.Load()) }
func (c *CallerEndpoint) ProcessId() int32       { return c.pid }
func (c *CallerEndpoint) ExitCode() int32        { return c.exitCode }
func (c *CallerEndpoint) ExitStatus() ExitStatus { return c.exitStatus }
func (c *CallerEndpoint) Program() string        { return c.program }
func (c *CallerEndpoint) Arguments() []string    { return c.arguments }

func (c *CallerEndpoint) Error() ErrorKind {
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Kind
}

func (c *CallerEndpoint) ErrorString() string {
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Message
}

// Start transitions the endpoint from NotRunning to Starting and sends (or
// stashes, if the socket is not yet ready) a StartProcess packet built
// from the endpoint's configuration plus the program/argv/writeData given
// here.
func (c *CallerEndpoint) Start(program string, arguments []string, writeData []byte) error {
	if !c.mux.isStarted() {
		return ErrMultiplexerNotStarted
	}
	if !c.state.CompareAndSwap(int32(NotRunning), int32(Starting)) {
		return ErrAlreadyStarted
	}

	c.program = program
	c.arguments = arguments

	pkt := wire.NewStartProcessPacket(wire.Token(c.token))
	pkt.Command = program
	pkt.Arguments = arguments
	pkt.WorkingDir = c.workingDir
	pkt.Env = c.env
	pkt.Mode = c.mode.toWire()
	pkt.WriteData = writeData
	pkt.ChannelMode = c.channelMode.toWire()
	pkt.StandardInputFile = c.standardInputFile
	pkt.BelowNormalPriority = c.belowNormalPriority
	pkt.NativeArguments = c.nativeArguments
	pkt.LowPriority = c.lowPriority
	pkt.UnixTerminalDisabled = c.unixTerminalDisable

	if c.mux.isReady() {
		c.mux.sendPacket(pkt)
		return nil
	}
	c.pair.mu.Lock()
	c.pendingStart = pkt
	c.pair.mu.Unlock()
	return nil
}

// flushPendingStart is called by the launcher-side endpoint once the
// socket transitions to ready.
func (c *CallerEndpoint) flushPendingStart() {
	c.pair.mu.Lock()
	pkt := c.pendingStart
	c.pendingStart = nil
	c.pair.mu.Unlock()
	if pkt != nil {
		c.mux.sendPacket(pkt)
	}
}

// Write sends bytes to the target process's stdin. It requires state
// Running; otherwise it returns -1 and sends nothing.
func (c *CallerEndpoint) Write(data []byte) int {
	if ProcessState(c.state.Load()) != Running {
		return -1
	}
	c.mux.sendPacket(wire.NewWritePacket(wire.Token(c.token), data))
	return len(data)
}

// Cancel compare-and-swaps the state to NotRunning and is safe to call at
// any state, idempotently. It also silences the paired launcher-endpoint
// so no further signal record reaches the user, and wakes any goroutine
// blocked in waitFor<Sig>.
func (c *CallerEndpoint) Cancel() {
	for {
		s := ProcessState(c.state.Load())
		if s == NotRunning {
			return
		}
		if !c.state.CompareAndSwap(int32(s), int32(NotRunning)) {
			continue
		}

		switch s {
		case Starting:
			message := fmt.Sprintf("%s (cmd: %s)", canceledBeforeStartedMessage, redactCommandLine(c.program, c.arguments))
			c.lastErr = &LaunchError{Kind: KindFailedToStart, Message: message}
			c.exitCode = 255
			if c.mux.isReady() {
				c.mux.sendPacket(wire.NewStopProcessPacket(wire.Token(c.token)))
			} else {
				c.pair.mu.Lock()
				c.pendingStart = nil
				c.pair.mu.Unlock()
				if c.OnErrorOccurred != nil {
					c.OnErrorOccurred(KindFailedToStart)
				}
			}
		case Running:
			c.mux.sendPacket(wire.NewStopProcessPacket(wire.Token(c.token)))
		}

		c.pair.mu.Lock()
		c.pair.queue.records = nil
		c.pair.silenced = true
		c.pair.cancelWaiter = true
		c.pair.mu.Unlock()
		c.pair.cond.Broadcast()
		return
	}
}

// Close unregisters the endpoint from its Multiplexer, severing the pair.
func (c *CallerEndpoint) Close() { c.mux.Unregister(c.token) }

// ReadAllStandardOutput atomically takes and clears the buffered stdout.
func (c *CallerEndpoint) ReadAllStandardOutput() []byte {
	b := c.stdout
	c.stdout = nil
	return b
}

// ReadAllStandardError atomically takes and clears the buffered stderr.
func (c *CallerEndpoint) ReadAllStandardError() []byte {
	b := c.stderr
	c.stderr = nil
	return b
}

// Notify returns a channel that receives a value whenever a drain is
// pending. A host event loop should select on it and call Drain — nothing
// drains the queue until the caller context gets around to it.
func (c *CallerEndpoint) Notify() <-chan struct{} { return c.wake }

func (c *CallerEndpoint) scheduleDrain() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Drain flushes the entire pending signal queue into user-visible
// notifications and buffer updates. It must run in the caller context.
func (c *CallerEndpoint) Drain() {
	c.flushFor(sigAny)
}

// flushFor selects pending records via signalQueue.takeFor, then applies
// each in queue order, returning the kinds drained so waitFor<Sig> can
// classify the outcome.
func (c *CallerEndpoint) flushFor(target signalKind) []signalKind {
	c.pair.mu.Lock()
	drained := c.pair.queue.takeFor(target)
	c.pair.mu.Unlock()

	kinds := make([]signalKind, len(drained))
	for i, s := range drained {
		kinds[i] = s.kind
		c.apply(s)
	}
	return kinds
}

func (c *CallerEndpoint) apply(s signal) {
	switch s.kind {
	case sigError:
		c.state.Store(int32(NotRunning))
		c.lastErr = &LaunchError{Kind: s.errKind, Message: s.errMsg}
		if s.errKind == KindFailedToStart {
			c.exitCode = 255
		}
		if c.OnErrorOccurred != nil {
			c.OnErrorOccurred(s.errKind)
		}
	case sigStarted:
		c.state.Store(int32(Running))
		c.pid = s.pid
		if c.OnStarted != nil {
			c.OnStarted()
		}
	case sigReadyRead:
		c.deliverReadyRead(s.stdout, s.stderr)
	case sigFinished:
		c.state.Store(int32(NotRunning))
		c.exitCode = s.exitCode
		c.exitStatus = fromWireExitStatus(s.exitStatus)
		if c.OnFinished != nil {
			c.OnFinished(c.exitCode, c.exitStatus)
		}
	}
}

func (c *CallerEndpoint) deliverReadyRead(stdout, stderr []byte) {
	if len(stdout) > 0 {
		if c.channelMode.forwardsOutput() {
			if c.forwardedStdout != nil {
				c.forwardedStdout.Write(stdout)
			}
		} else {
			c.stdout = append(c.stdout, stdout...)
			if c.OnReadyReadStandardOutput != nil {
				c.OnReadyReadStandardOutput()
			}
		}
	}
	if len(stderr) > 0 {
		if c.channelMode.forwardsError() {
			if c.forwardedStderr != nil {
				c.forwardedStderr.Write(stderr)
			}
		} else {
			c.stderr = append(c.stderr, stderr...)
			if c.OnReadyReadStandardError != nil {
				c.OnReadyReadStandardError()
			}
		}
	}
}

// WaitForStarted blocks until the process has started, a terminal error
// or finish arrives, the deadline expires, or the wait is cancelled.
func (c *CallerEndpoint) WaitForStarted(ms int) bool { return c.waitFor(sigStarted, ms) }

// WaitForReadyRead blocks until output arrives, a terminal error or
// finish arrives, the deadline expires, or the wait is cancelled.
func (c *CallerEndpoint) WaitForReadyRead(ms int) bool { return c.waitFor(sigReadyRead, ms) }

// WaitForFinished blocks until the process finishes, an error arrives, the
// deadline expires, or the wait is cancelled.
func (c *CallerEndpoint) WaitForFinished(ms int) bool { return c.waitFor(sigFinished, ms) }

func classify(drained []signalKind, target signalKind) (result, conclusive bool) {
	for _, k := range drained {
		if k == target {
			return true, true
		}
	}
	for _, k := range drained {
		if k == sigError {
			return false, true
		}
	}
	for _, k := range drained {
		if k == sigFinished {
			return false, true
		}
	}
	return false, false
}

// waitFor implements a condition-variable-plus-predicate pattern: pre-check
// the queue, then arm waiting-for and block on the pair's wait-condition
// with an absolute deadline, re-checking after every wakeup since a wakeup
// may be inconclusive (e.g. only a Started arrived while waiting for
// Finished).
func (c *CallerEndpoint) waitFor(target signalKind, ms int) bool {
	if ms <= 0 {
		c.pair.mu.Lock()
		hit := c.pair.queue.containsTerminalOrTarget(target)
		c.pair.mu.Unlock()
		if !hit {
			return false
		}
		c.flushFor(target)
		return true
	}

	deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
	for {
		c.pair.mu.Lock()
		if c.pair.cancelWaiter {
			c.pair.cancelWaiter = false
			c.pair.waitingFor = noWait
			c.pair.mu.Unlock()
			return true
		}
		if c.pair.queue.containsTerminalOrTarget(target) {
			c.pair.mu.Unlock()
			c.flushFor(target)
			return true
		}
		c.pair.waitingFor = target
		timedOut := c.pair.waitUntil(deadline, func() bool {
			return c.pair.cancelWaiter || c.pair.waitingFor != target
		})
		cancelled := c.pair.cancelWaiter
		c.pair.cancelWaiter = false
		if c.pair.waitingFor == target {
			c.pair.waitingFor = noWait
		}
		c.pair.mu.Unlock()

		if cancelled {
			return true
		}
		if timedOut {
			return false
		}

		kinds := c.flushFor(target)
		if result, conclusive := classify(kinds, target); conclusive {
			return result
		}
		// inconclusive wakeup (e.g. a Started arrived while waiting for
		// Finished): loop and re-arm the wait against the same deadline.
	}
}
