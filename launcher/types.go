package launcher

import "github.com/arcflow/launchbridge/launcher/wire"

// ProcessMode distinguishes a process whose stdin is closed after an
// optional one-shot write from one whose stdin stays open for interactive
// Write calls.
type ProcessMode uint8

const (
	ProcessModeReader ProcessMode = iota
	ProcessModeWriter
)

func (m ProcessMode) toWire() wire.ProcessMode { return wire.ProcessMode(m) }

// ChannelMode controls whether a process's stdout/stderr are buffered for
// ReadAllStandardOutput/Error, or forwarded directly to a host-provided
// sink as they arrive.
type ChannelMode uint8

const (
	ChannelModeSeparate ChannelMode = iota
	ChannelModeMerged
	ChannelModeForwarded
	ChannelModeForwardedOutput
	ChannelModeForwardedError
)

func (m ChannelMode) toWire() wire.ChannelMode { return wire.ChannelMode(m) }

func (m ChannelMode) forwardsOutput() bool {
	return m == ChannelModeForwarded || m == ChannelModeForwardedOutput
}

func (m ChannelMode) forwardsError() bool {
	return m == ChannelModeForwarded || m == ChannelModeForwardedError
}

// ExitStatus distinguishes a clean exit from a crash/signal termination.
type ExitStatus uint8

const (
	ExitStatusNormal ExitStatus = iota
	ExitStatusCrash
)

func (s ExitStatus) String() string {
	if s == ExitStatusCrash {
		return "Crash"
	}
	return "Normal"
}

func fromWireExitStatus(s wire.ExitStatus) ExitStatus {
	if s == wire.ExitStatusCrash {
		return ExitStatusCrash
	}
	return ExitStatusNormal
}

// ProcessState is the three-state machine every registered endpoint walks
// through: NotRunning -> Starting -> Running -> NotRunning. It is read
// atomically from any goroutine via CallerEndpoint.State.
type ProcessState int32

const (
	NotRunning ProcessState = iota
	Starting
	Running
)

func (s ProcessState) String() string {
	switch s {
	case NotRunning:
		return "NotRunning"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	default:
		return "NotRunning"
	}
}
