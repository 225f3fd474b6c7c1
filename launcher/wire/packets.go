package wire

// ProcessMode distinguishes a process whose stdin is closed after an
// optional one-shot write (Reader) from one whose stdin stays open for
// interactive Write packets (Writer).
type ProcessMode uint8

const (
	ProcessModeReader ProcessMode = iota
	ProcessModeWriter
)

// ChannelMode mirrors the host process's stdout/stderr channel wiring.
type ChannelMode uint8

const (
	ChannelModeSeparate ChannelMode = iota
	ChannelModeMerged
	ChannelModeForwarded
	ChannelModeForwardedOutput
	ChannelModeForwardedError
)

// ExitStatus distinguishes a clean exit from a crash/signal termination.
type ExitStatus uint8

const (
	ExitStatusNormal ExitStatus = iota
	ExitStatusCrash
)

// ErrorKind is the helper's process-error taxonomy, carried verbatim on
// ProcessError and ProcessFinished packets.
type ErrorKind uint8

const (
	ErrorFailedToStart ErrorKind = iota
	ErrorCrashed
	ErrorTimedout
	ErrorWriteError
	ErrorReadError
	ErrorUnknownError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorFailedToStart:
		return "FailedToStart"
	case ErrorCrashed:
		return "Crashed"
	case ErrorTimedout:
		return "Timedout"
	case ErrorWriteError:
		return "WriteError"
	case ErrorReadError:
		return "ReadError"
	case ErrorUnknownError:
		return "UnknownError"
	default:
		return "UnknownError"
	}
}

// StartProcessPacket is sent once per CallerEndpoint.Start call. Start is
// refused while the endpoint is Starting or Running; once the endpoint is
// back in NotRunning, a further Start sends another StartProcessPacket
// under the same token.
type StartProcessPacket struct {
	token                Token
	Command              string
	Arguments            []string
	WorkingDir           string
	Env                  []string
	Mode                 ProcessMode
	WriteData            []byte
	ChannelMode          ChannelMode
	StandardInputFile    string
	BelowNormalPriority  bool
	NativeArguments      string
	LowPriority          bool
	UnixTerminalDisabled bool
}

func NewStartProcessPacket(token Token) *StartProcessPacket {
	return &StartProcessPacket{token: token}
}

func (p *StartProcessPacket) PacketType() PacketType { return TypeStartProcess }
func (p *StartProcessPacket) PacketToken() Token     { return p.token }

func (p *StartProcessPacket) encode() []byte {
	w := &byteWriter{}
	w.putString(p.Command)
	w.putStringList(p.Arguments)
	w.putString(p.WorkingDir)
	w.putStringList(p.Env)
	w.putUint8(uint8(p.Mode))
	w.putBytes(p.WriteData)
	w.putUint8(uint8(p.ChannelMode))
	w.putString(p.StandardInputFile)
	w.putBool(p.BelowNormalPriority)
	w.putString(p.NativeArguments)
	w.putBool(p.LowPriority)
	w.putBool(p.UnixTerminalDisabled)
	return w.bytes()
}

func decodeStartProcess(token Token, payload []byte) (*StartProcessPacket, error) {
	r := newByteReader(payload)
	p := &StartProcessPacket{token: token}
	var err error
	if p.Command, err = r.getString(); err != nil {
		return nil, err
	}
	if p.Arguments, err = r.getStringList(); err != nil {
		return nil, err
	}
	if p.WorkingDir, err = r.getString(); err != nil {
		return nil, err
	}
	if p.Env, err = r.getStringList(); err != nil {
		return nil, err
	}
	mode, err := r.getUint8()
	if err != nil {
		return nil, err
	}
	p.Mode = ProcessMode(mode)
	if p.WriteData, err = r.getBytes(); err != nil {
		return nil, err
	}
	cm, err := r.getUint8()
	if err != nil {
		return nil, err
	}
	p.ChannelMode = ChannelMode(cm)
	if p.StandardInputFile, err = r.getString(); err != nil {
		return nil, err
	}
	if p.BelowNormalPriority, err = r.getBool(); err != nil {
		return nil, err
	}
	if p.NativeArguments, err = r.getString(); err != nil {
		return nil, err
	}
	if p.LowPriority, err = r.getBool(); err != nil {
		return nil, err
	}
	if p.UnixTerminalDisabled, err = r.getBool(); err != nil {
		return nil, err
	}
	return p, nil
}

// WritePacket carries bytes to append to the target process's stdin.
type WritePacket struct {
	token     Token
	InputData []byte
}

func NewWritePacket(token Token, data []byte) *WritePacket {
	return &WritePacket{token: token, InputData: data}
}

func (p *WritePacket) PacketType() PacketType { return TypeWrite }
func (p *WritePacket) PacketToken() Token     { return p.token }

func (p *WritePacket) encode() []byte {
	w := &byteWriter{}
	w.putBytes(p.InputData)
	return w.bytes()
}

func decodeWrite(token Token, payload []byte) (*WritePacket, error) {
	r := newByteReader(payload)
	data, err := r.getBytes()
	if err != nil {
		return nil, err
	}
	return &WritePacket{token: token, InputData: data}, nil
}

// StopProcessPacket asks the helper to terminate the target process.
type StopProcessPacket struct {
	token Token
}

func NewStopProcessPacket(token Token) *StopProcessPacket { return &StopProcessPacket{token: token} }

func (p *StopProcessPacket) PacketType() PacketType { return TypeStopProcess }
func (p *StopProcessPacket) PacketToken() Token     { return p.token }

// ShutdownPacket asks the helper to exit; it carries no token since it
// addresses the helper itself rather than any one managed process.
type ShutdownPacket struct{}

func NewShutdownPacket() *ShutdownPacket { return &ShutdownPacket{} }

func (p *ShutdownPacket) PacketType() PacketType { return TypeShutdown }
func (p *ShutdownPacket) PacketToken() Token     { return 0 }

// ProcessErrorPacket reports a helper-side process error for token.
type ProcessErrorPacket struct {
	token        Token
	Error        ErrorKind
	ErrorMessage string
}

func NewProcessErrorPacket(token Token, kind ErrorKind, message string) *ProcessErrorPacket {
	return &ProcessErrorPacket{token: token, Error: kind, ErrorMessage: message}
}

func (p *ProcessErrorPacket) PacketType() PacketType { return TypeProcessError }
func (p *ProcessErrorPacket) PacketToken() Token     { return p.token }

func (p *ProcessErrorPacket) encode() []byte {
	w := &byteWriter{}
	w.putUint8(uint8(p.Error))
	w.putString(p.ErrorMessage)
	return w.bytes()
}

func decodeProcessError(token Token, payload []byte) (*ProcessErrorPacket, error) {
	r := newByteReader(payload)
	kind, err := r.getUint8()
	if err != nil {
		return nil, err
	}
	msg, err := r.getString()
	if err != nil {
		return nil, err
	}
	return &ProcessErrorPacket{token: token, Error: ErrorKind(kind), ErrorMessage: msg}, nil
}

// ProcessStartedPacket reports that the target process is now running.
type ProcessStartedPacket struct {
	token Token
	PID   int32
}

func NewProcessStartedPacket(token Token, pid int32) *ProcessStartedPacket {
	return &ProcessStartedPacket{token: token, PID: pid}
}

func (p *ProcessStartedPacket) PacketType() PacketType { return TypeProcessStarted }
func (p *ProcessStartedPacket) PacketToken() Token     { return p.token }

func (p *ProcessStartedPacket) encode() []byte {
	w := &byteWriter{}
	w.putInt32(p.PID)
	return w.bytes()
}

func decodeProcessStarted(token Token, payload []byte) (*ProcessStartedPacket, error) {
	r := newByteReader(payload)
	pid, err := r.getInt32()
	if err != nil {
		return nil, err
	}
	return &ProcessStartedPacket{token: token, PID: pid}, nil
}

// ReadyReadStandardOutputPacket carries a chunk of the target's stdout.
type ReadyReadStandardOutputPacket struct {
	token Token
	Data  []byte
}

func NewReadyReadStandardOutputPacket(token Token, data []byte) *ReadyReadStandardOutputPacket {
	return &ReadyReadStandardOutputPacket{token: token, Data: data}
}

func (p *ReadyReadStandardOutputPacket) PacketType() PacketType {
	return TypeReadyReadStandardOutput
}
func (p *ReadyReadStandardOutputPacket) PacketToken() Token { return p.token }

func (p *ReadyReadStandardOutputPacket) encode() []byte {
	w := &byteWriter{}
	w.putBytes(p.Data)
	return w.bytes()
}

func decodeReadyReadStandardOutput(token Token, payload []byte) (*ReadyReadStandardOutputPacket, error) {
	r := newByteReader(payload)
	data, err := r.getBytes()
	if err != nil {
		return nil, err
	}
	return &ReadyReadStandardOutputPacket{token: token, Data: data}, nil
}

// ReadyReadStandardErrorPacket carries a chunk of the target's stderr.
type ReadyReadStandardErrorPacket struct {
	token Token
	Data  []byte
}

func NewReadyReadStandardErrorPacket(token Token, data []byte) *ReadyReadStandardErrorPacket {
	return &ReadyReadStandardErrorPacket{token: token, Data: data}
}

func (p *ReadyReadStandardErrorPacket) PacketType() PacketType {
	return TypeReadyReadStandardError
}
func (p *ReadyReadStandardErrorPacket) PacketToken() Token { return p.token }

func (p *ReadyReadStandardErrorPacket) encode() []byte {
	w := &byteWriter{}
	w.putBytes(p.Data)
	return w.bytes()
}

func decodeReadyReadStandardError(token Token, payload []byte) (*ReadyReadStandardErrorPacket, error) {
	r := newByteReader(payload)
	data, err := r.getBytes()
	if err != nil {
		return nil, err
	}
	return &ReadyReadStandardErrorPacket{token: token, Data: data}, nil
}

// ProcessFinishedPacket reports terminal state for the target process,
// optionally bundling a trailing error and/or trailing output that arrived
// too close to exit to have been reported via separate packets.
type ProcessFinishedPacket struct {
	token        Token
	ErrorMessage string
	StdOut       []byte
	StdErr       []byte
	ExitStatus   ExitStatus
	Error        ErrorKind
	ExitCode     int32
}

func NewProcessFinishedPacket(token Token) *ProcessFinishedPacket {
	return &ProcessFinishedPacket{token: token, Error: ErrorUnknownError}
}

func (p *ProcessFinishedPacket) PacketType() PacketType { return TypeProcessFinished }
func (p *ProcessFinishedPacket) PacketToken() Token     { return p.token }

func (p *ProcessFinishedPacket) encode() []byte {
	w := &byteWriter{}
	w.putString(p.ErrorMessage)
	w.putBytes(p.StdOut)
	w.putBytes(p.StdErr)
	w.putUint8(uint8(p.ExitStatus))
	w.putUint8(uint8(p.Error))
	w.putInt32(p.ExitCode)
	return w.bytes()
}

func decodeProcessFinished(token Token, payload []byte) (*ProcessFinishedPacket, error) {
	r := newByteReader(payload)
	p := &ProcessFinishedPacket{token: token}
	var err error
	if p.ErrorMessage, err = r.getString(); err != nil {
		return nil, err
	}
	if p.StdOut, err = r.getBytes(); err != nil {
		return nil, err
	}
	if p.StdErr, err = r.getBytes(); err != nil {
		return nil, err
	}
	status, err := r.getUint8()
	if err != nil {
		return nil, err
	}
	p.ExitStatus = ExitStatus(status)
	kind, err := r.getUint8()
	if err != nil {
		return nil, err
	}
	p.Error = ErrorKind(kind)
	if p.ExitCode, err = r.getInt32(); err != nil {
		return nil, err
	}
	return p, nil
}
