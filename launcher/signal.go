package launcher

import "github.com/arcflow/launchbridge/launcher/wire"

// signalKind tags the variant held in a signal record.
type signalKind uint8

const (
	sigError signalKind = iota
	sigStarted
	sigReadyRead
	sigFinished
	// sigAny is never a real record kind; it is the flushFor target used
	// by an unconditional Drain() that is not behind any particular
	// waitFor call.
	sigAny
	// noWait marks that no caller goroutine is currently blocked in
	// waitFor<Sig>.
	noWait signalKind = 255
)

// signal is one queued, not-yet-delivered observation about a process.
// Only the fields relevant to kind are populated.
type signal struct {
	kind signalKind

	errKind ErrorKind
	errMsg  string

	pid int32

	stdout []byte
	stderr []byte

	exitCode   int32
	exitStatus wire.ExitStatus
}

// signalQueue is the per-pair ordered record of not-yet-drained signals.
// append implements the coalescing invariant on ReadyRead records
// structurally rather than as an ad-hoc optimization.
type signalQueue struct {
	records []signal
}

func (q *signalQueue) append(s signal) {
	if s.kind == sigReadyRead {
		if n := len(q.records); n > 0 && q.records[n-1].kind == sigReadyRead {
			tail := &q.records[n-1]
			tail.stdout = append(tail.stdout, s.stdout...)
			tail.stderr = append(tail.stderr, s.stderr...)
			return
		}
	}
	q.records = append(q.records, s)
}

// containsTerminalOrTarget reports whether the queue already holds a
// record that would make waitFor's pre-check resolve immediately: the
// target itself, or an Error, or a Finished.
func (q *signalQueue) containsTerminalOrTarget(target signalKind) bool {
	for _, r := range q.records {
		if r.kind == target || r.kind == sigError || r.kind == sigFinished {
			return true
		}
	}
	return false
}

// takeFor selects records to drain: take the whole queue for target
// "any"/ReadyRead/Finished or when any Error is queued; otherwise take the
// prefix up to and including the last record matching target (falling
// back to the last Started for an unmatched ReadyRead target, though that
// branch is unreachable for the target set this package actually uses).
func (q *signalQueue) takeFor(target signalKind) []signal {
	takeAll := target == sigAny || target == sigReadyRead || target == sigFinished
	if !takeAll {
		for _, r := range q.records {
			if r.kind == sigError {
				takeAll = true
				break
			}
		}
	}
	if takeAll {
		out := q.records
		q.records = nil
		return out
	}

	lastIdx := -1
	for i, r := range q.records {
		if r.kind == target {
			lastIdx = i
		}
	}
	if lastIdx == -1 && target == sigReadyRead {
		for i, r := range q.records {
			if r.kind == sigStarted {
				lastIdx = i
			}
		}
	}
	if lastIdx == -1 {
		return nil
	}
	out := make([]signal, lastIdx+1)
	copy(out, q.records[:lastIdx+1])
	q.records = q.records[lastIdx+1:]
	return out
}

// shouldWake implements the launcher-endpoint's per-packet wakeup policy
// against the signal kind currently arriving.
func shouldWake(waiting, received signalKind) bool {
	if waiting == noWait {
		return false
	}
	if received == sigError || received == sigFinished {
		return true
	}
	if received == waiting {
		return true
	}
	if waiting == sigFinished {
		return true
	}
	if waiting == sigReadyRead && received == sigStarted {
		return true
	}
	return false
}
