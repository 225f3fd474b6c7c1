package launcher

import (
	"fmt"

	"github.com/arcflow/launchbridge/launcher/wire"
)

// launcherEndpoint is the launcher-context half of an endpoint pair. It
// lives entirely inside the Multiplexer's token map; there is no exported
// handle onto it — callers only ever see the CallerEndpoint it feeds.
type launcherEndpoint struct {
	token Token
	pair  *pairState

	// caller is a weak, pair-mutex-guarded back-reference, nilled by
	// Multiplexer.Unregister before the pair is torn down.
	caller *CallerEndpoint
}

// handlePacket translates one inbound packet into queued signal records,
// then schedules a drain on the caller context.
func (e *launcherEndpoint) handlePacket(p wire.Packet) {
	e.pair.mu.Lock()
	if e.pair.silenced || e.pair.torn || e.caller == nil {
		e.pair.mu.Unlock()
		return
	}

	switch pkt := p.(type) {
	case *wire.ProcessErrorPacket:
		e.wakeLocked(sigError)
		e.pair.queue.append(signal{kind: sigError, errKind: fromWireErrorKind(pkt.Error), errMsg: pkt.ErrorMessage})

	case *wire.ProcessStartedPacket:
		e.wakeLocked(sigStarted)
		e.pair.queue.append(signal{kind: sigStarted, pid: pkt.PID})

	case *wire.ReadyReadStandardOutputPacket:
		if len(pkt.Data) == 0 {
			e.pair.mu.Unlock()
			return
		}
		e.wakeLocked(sigReadyRead)
		e.pair.queue.append(signal{kind: sigReadyRead, stdout: pkt.Data})

	case *wire.ReadyReadStandardErrorPacket:
		if len(pkt.Data) == 0 {
			e.pair.mu.Unlock()
			return
		}
		e.wakeLocked(sigReadyRead)
		e.pair.queue.append(signal{kind: sigReadyRead, stderr: pkt.Data})

	case *wire.ProcessFinishedPacket:
		e.wakeLocked(sigFinished)
		if pkt.Error != wire.ErrorUnknownError {
			e.pair.queue.append(signal{kind: sigError, errKind: fromWireErrorKind(pkt.Error), errMsg: pkt.ErrorMessage})
		}
		if len(pkt.StdOut) > 0 || len(pkt.StdErr) > 0 {
			e.pair.queue.append(signal{kind: sigReadyRead, stdout: pkt.StdOut, stderr: pkt.StdErr})
		}
		e.pair.queue.append(signal{kind: sigFinished, exitCode: pkt.ExitCode, exitStatus: pkt.ExitStatus})

	default:
		e.pair.mu.Unlock()
		return
	}

	caller := e.caller
	e.pair.mu.Unlock()
	caller.scheduleDrain()
}

// wakeLocked applies the wakeup policy for an inbound record of kind
// received. e.pair.mu must already be held.
func (e *launcherEndpoint) wakeLocked(received signalKind) {
	if shouldWake(e.pair.waitingFor, received) {
		e.pair.waitingFor = noWait
		e.pair.cond.Broadcast()
	}
}

// onReady is invoked once per endpoint when the Multiplexer's socket
// becomes ready: it asks the paired caller-endpoint to flush a deferred
// StartProcess, if one was stashed.
func (e *launcherEndpoint) onReady() {
	e.pair.mu.Lock()
	caller := e.caller
	e.pair.mu.Unlock()
	if caller != nil {
		caller.flushPendingStart()
	}
}

// onSocketError synthesizes a FailedToStart record when the socket itself
// fails out from under a running process.
func (e *launcherEndpoint) onSocketError(err error) {
	e.pair.mu.Lock()
	if e.pair.silenced || e.pair.torn || e.caller == nil {
		e.pair.mu.Unlock()
		return
	}
	e.wakeLocked(sigError)
	e.pair.queue.append(signal{
		kind:    sigError,
		errKind: KindFailedToStart,
		errMsg:  fmt.Sprintf("Internal socket error: %s", err),
	})
	caller := e.caller
	e.pair.mu.Unlock()
	caller.scheduleDrain()
}
