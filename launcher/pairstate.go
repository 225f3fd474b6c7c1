package launcher

import (
	"sync"
	"time"
)

// pairState is the single mutex plus condition variable shared by one
// caller-side endpoint and its paired launcher-side endpoint. It guards
// the signal queue, the wait target, and the cancellation/teardown flags
// that must be visible from both contexts.
type pairState struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue signalQueue

	waitingFor signalKind // noWait when nobody is blocked in waitFor

	// cancelWaiter is set by CallerEndpoint.Cancel to force any currently
	// blocked waiter to return immediately.
	cancelWaiter bool

	// silenced is set by CallerEndpoint.Cancel; once true, the
	// launcher-side endpoint drops every inbound packet without queueing
	// it, so no signal is delivered after a caller-initiated cancel.
	silenced bool

	// torn is set by Multiplexer.Unregister once the pair has been
	// severed; handlePacket treats it identically to silenced.
	torn bool
}

func newPairState() *pairState {
	ps := &pairState{waitingFor: noWait}
	ps.cond = sync.NewCond(&ps.mu)
	return ps
}

// waitUntil blocks the calling goroutine, which must hold ps.mu, until
// pred reports true or deadline passes. It reports whether the deadline
// was the reason for waking. A zero deadline means wait with no timeout.
// pred is evaluated with ps.mu held; waitUntil re-evaluates it after every
// wakeup, tolerating the spurious wakeups condition variables allow.
func (ps *pairState) waitUntil(deadline time.Time, pred func() bool) (timedOut bool) {
	if deadline.IsZero() {
		for !pred() {
			ps.cond.Wait()
		}
		return false
	}

	expired := false
	timer := time.AfterFunc(time.Until(deadline), func() {
		ps.mu.Lock()
		expired = true
		ps.mu.Unlock()
		ps.cond.Broadcast()
	})
	defer timer.Stop()

	for !pred() {
		if expired {
			return true
		}
		ps.cond.Wait()
	}
	return false
}
