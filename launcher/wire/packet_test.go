package wire

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	parser := NewParser()
	parser.Feed(Serialize(p))
	got, err := parser.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got == nil {
		t.Fatalf("Next returned nil, want a packet")
	}
	return got
}

func TestStartProcessRoundTrip(t *testing.T) {
	p := NewStartProcessPacket(42)
	p.Command = "echo"
	p.Arguments = []string{"hello", "world"}
	p.WorkingDir = "/tmp"
	p.Env = []string{"PATH=/bin", "FOO=bar"}
	p.Mode = ProcessModeWriter
	p.WriteData = []byte("seed")
	p.ChannelMode = ChannelModeForwarded
	p.StandardInputFile = "/dev/null"
	p.BelowNormalPriority = true
	p.NativeArguments = "--native"
	p.LowPriority = true
	p.UnixTerminalDisabled = true

	got, ok := roundTrip(t, p).(*StartProcessPacket)
	if !ok {
		t.Fatalf("wrong type: %T", got)
	}
	if got.PacketToken() != 42 {
		t.Fatalf("token = %d, want 42", got.PacketToken())
	}
	if got.Command != "echo" || len(got.Arguments) != 2 || got.Arguments[1] != "world" {
		t.Fatalf("fields mismatch: %+v", got)
	}
	if got.WorkingDir != "/tmp" || len(got.Env) != 2 {
		t.Fatalf("fields mismatch: %+v", got)
	}
	if got.Mode != ProcessModeWriter || got.ChannelMode != ChannelModeForwarded {
		t.Fatalf("mode mismatch: %+v", got)
	}
	if !bytes.Equal(got.WriteData, []byte("seed")) {
		t.Fatalf("writeData mismatch: %q", got.WriteData)
	}
	if !got.BelowNormalPriority || !got.LowPriority || !got.UnixTerminalDisabled {
		t.Fatalf("flag mismatch: %+v", got)
	}
	if got.NativeArguments != "--native" || got.StandardInputFile != "/dev/null" {
		t.Fatalf("string field mismatch: %+v", got)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	p := NewWritePacket(7, []byte("stdin data"))
	got, ok := roundTrip(t, p).(*WritePacket)
	if !ok {
		t.Fatalf("wrong type: %T", got)
	}
	if got.PacketToken() != 7 || !bytes.Equal(got.InputData, []byte("stdin data")) {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestStopAndShutdownRoundTrip(t *testing.T) {
	stop := roundTrip(t, NewStopProcessPacket(9))
	if stop.PacketType() != TypeStopProcess || stop.PacketToken() != 9 {
		t.Fatalf("unexpected stop packet: %+v", stop)
	}
	shutdown := roundTrip(t, NewShutdownPacket())
	if shutdown.PacketType() != TypeShutdown {
		t.Fatalf("unexpected shutdown packet: %+v", shutdown)
	}
}

func TestProcessErrorRoundTrip(t *testing.T) {
	p := NewProcessErrorPacket(3, ErrorFailedToStart, "no such file")
	got, ok := roundTrip(t, p).(*ProcessErrorPacket)
	if !ok {
		t.Fatalf("wrong type: %T", got)
	}
	if got.Error != ErrorFailedToStart || got.ErrorMessage != "no such file" {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestProcessStartedRoundTrip(t *testing.T) {
	p := NewProcessStartedPacket(3, 4711)
	got, ok := roundTrip(t, p).(*ProcessStartedPacket)
	if !ok {
		t.Fatalf("wrong type: %T", got)
	}
	if got.PID != 4711 {
		t.Fatalf("pid = %d, want 4711", got.PID)
	}
}

func TestReadyReadRoundTrip(t *testing.T) {
	out := NewReadyReadStandardOutputPacket(1, []byte("stdout chunk"))
	gotOut, ok := roundTrip(t, out).(*ReadyReadStandardOutputPacket)
	if !ok || !bytes.Equal(gotOut.Data, []byte("stdout chunk")) {
		t.Fatalf("stdout mismatch: %+v", gotOut)
	}
	errPkt := NewReadyReadStandardErrorPacket(1, []byte("stderr chunk"))
	gotErr, ok := roundTrip(t, errPkt).(*ReadyReadStandardErrorPacket)
	if !ok || !bytes.Equal(gotErr.Data, []byte("stderr chunk")) {
		t.Fatalf("stderr mismatch: %+v", gotErr)
	}
}

func TestProcessFinishedRoundTrip(t *testing.T) {
	p := NewProcessFinishedPacket(5)
	p.StdOut = []byte("final out")
	p.StdErr = []byte("final err")
	p.ExitStatus = ExitStatusCrash
	p.Error = ErrorCrashed
	p.ErrorMessage = "killed"
	p.ExitCode = 137
	got, ok := roundTrip(t, p).(*ProcessFinishedPacket)
	if !ok {
		t.Fatalf("wrong type: %T", got)
	}
	if got.ExitStatus != ExitStatusCrash || got.Error != ErrorCrashed || got.ExitCode != 137 {
		t.Fatalf("mismatch: %+v", got)
	}
	if !bytes.Equal(got.StdOut, p.StdOut) || !bytes.Equal(got.StdErr, p.StdErr) {
		t.Fatalf("buffer mismatch: %+v", got)
	}
}

func TestParserConcatenatedFrames(t *testing.T) {
	parser := NewParser()
	parser.Feed(Serialize(NewProcessStartedPacket(1, 100)))
	parser.Feed(Serialize(NewProcessFinishedPacket(1)))

	first, err := parser.Next()
	if err != nil || first == nil {
		t.Fatalf("first Next: %v / %v", first, err)
	}
	if _, ok := first.(*ProcessStartedPacket); !ok {
		t.Fatalf("first packet type = %T", first)
	}
	second, err := parser.Next()
	if err != nil || second == nil {
		t.Fatalf("second Next: %v / %v", second, err)
	}
	if _, ok := second.(*ProcessFinishedPacket); !ok {
		t.Fatalf("second packet type = %T", second)
	}
}

func TestParserNeedsMoreBytes(t *testing.T) {
	parser := NewParser()
	full := Serialize(NewProcessStartedPacket(1, 1))
	parser.Feed(full[:len(full)-1])
	got, err := parser.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected need-more (nil), got %+v", got)
	}
	parser.Feed(full[len(full)-1:])
	got, err = parser.Next()
	if err != nil || got == nil {
		t.Fatalf("expected complete packet after remaining byte, got %+v / %v", got, err)
	}
}

func TestParserByteAtATime(t *testing.T) {
	parser := NewParser()
	full := Serialize(NewReadyReadStandardOutputPacket(2, []byte("chunked")))
	var got Packet
	for i := 0; i < len(full); i++ {
		parser.Feed(full[i : i+1])
		p, err := parser.Next()
		if err != nil {
			t.Fatalf("unexpected error at byte %d: %v", i, err)
		}
		if p != nil {
			got = p
		}
	}
	out, ok := got.(*ReadyReadStandardOutputPacket)
	if !ok {
		t.Fatalf("final packet type = %T", got)
	}
	if !bytes.Equal(out.Data, []byte("chunked")) {
		t.Fatalf("data = %q", out.Data)
	}
}

func TestParserInvalidSizeTooSmall(t *testing.T) {
	parser := NewParser()
	buf := make([]byte, 4)
	// total_length smaller than the common header (type+token) is invalid.
	buf[0] = 3
	parser.Feed(buf)
	_, err := parser.Next()
	if err == nil {
		t.Fatalf("expected InvalidSizeError")
	}
	var sizeErr *InvalidSizeError
	if !errorsAs(err, &sizeErr) {
		t.Fatalf("expected *InvalidSizeError, got %T: %v", err, err)
	}
}

func TestParserInvalidSizeTooLarge(t *testing.T) {
	parser := NewParser()
	buf := make([]byte, 4)
	buf[0], buf[1], buf[2], buf[3] = 0xff, 0xff, 0xff, 0x7f
	parser.Feed(buf)
	_, err := parser.Next()
	if err == nil {
		t.Fatalf("expected InvalidSizeError")
	}
}

func TestParserUnknownType(t *testing.T) {
	parser := NewParser()
	raw := Serialize(NewStopProcessPacket(1))
	raw[4] = 0xEE // corrupt the type tag in place
	parser.Feed(raw)
	_, err := parser.Next()
	if err == nil {
		t.Fatalf("expected UnknownTypeError")
	}
	var typeErr *UnknownTypeError
	if !errorsAs(err, &typeErr) {
		t.Fatalf("expected *UnknownTypeError, got %T: %v", err, err)
	}
}

// errorsAs avoids importing errors solely for a type switch in tests that
// already construct the concrete error locally.
func errorsAs(err error, target any) bool {
	switch t := target.(type) {
	case **InvalidSizeError:
		if e, ok := err.(*InvalidSizeError); ok {
			*t = e
			return true
		}
	case **UnknownTypeError:
		if e, ok := err.(*UnknownTypeError); ok {
			*t = e
			return true
		}
	}
	return false
}
