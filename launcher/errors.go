package launcher

import (
	"errors"
	"fmt"

	"github.com/arcflow/launchbridge/launcher/wire"
)

// ErrorKind enumerates the process-error taxonomy surfaced to callers. It
// mirrors the helper's own taxonomy verbatim; the two errors the core
// synthesizes itself (cancel before start, socket failure) are reported as
// KindFailedToStart.
type ErrorKind string

const (
	KindFailedToStart ErrorKind = "FailedToStart"
	KindCrashed       ErrorKind = "Crashed"
	KindTimedout      ErrorKind = "Timedout"
	KindWriteError    ErrorKind = "WriteError"
	KindReadError     ErrorKind = "ReadError"
	KindUnknownError  ErrorKind = "UnknownError"
)

func (k ErrorKind) String() string { return string(k) }

func fromWireErrorKind(k wire.ErrorKind) ErrorKind {
	switch k {
	case wire.ErrorFailedToStart:
		return KindFailedToStart
	case wire.ErrorCrashed:
		return KindCrashed
	case wire.ErrorTimedout:
		return KindTimedout
	case wire.ErrorWriteError:
		return KindWriteError
	case wire.ErrorReadError:
		return KindReadError
	default:
		return KindUnknownError
	}
}

// LaunchError is the concrete error type recorded on a CallerEndpoint and
// delivered to OnErrorOccurred. It satisfies error so host code can
// errors.As it out of whatever it gets wrapped in.
type LaunchError struct {
	Kind    ErrorKind
	Message string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launcher: %s: %s", e.Kind, e.Message)
}

var (
	// ErrTokenExists is returned by Multiplexer.Register when the token
	// already has a live endpoint pair.
	ErrTokenExists = errors.New("launcher: token already registered")

	// ErrMultiplexerNotStarted is returned by CallerEndpoint.Start when
	// the owning Multiplexer's Run has not been started yet.
	ErrMultiplexerNotStarted = errors.New("launcher: multiplexer not started")

	// ErrAlreadyStarted is returned by CallerEndpoint.Start when the
	// endpoint is not in NotRunning.
	ErrAlreadyStarted = errors.New("launcher: process already started")
)
