// Package wire implements the length-prefixed packet framing spoken between
// the caller process and its single launcher helper peer: serialization,
// streaming parsing, and the closed set of packet payloads that cross the
// wire in either direction.
package wire

import (
	"encoding/binary"
	"fmt"
)

// PacketType tags the payload that follows a frame header.
type PacketType uint8

const (
	TypeShutdown PacketType = iota
	TypeStartProcess
	TypeWrite
	TypeStopProcess
	TypeProcessError
	TypeProcessStarted
	TypeReadyReadStandardOutput
	TypeReadyReadStandardError
	TypeProcessFinished
)

func (t PacketType) String() string {
	switch t {
	case TypeShutdown:
		return "Shutdown"
	case TypeStartProcess:
		return "StartProcess"
	case TypeWrite:
		return "Write"
	case TypeStopProcess:
		return "StopProcess"
	case TypeProcessError:
		return "ProcessError"
	case TypeProcessStarted:
		return "ProcessStarted"
	case TypeReadyReadStandardOutput:
		return "ReadyReadStandardOutput"
	case TypeReadyReadStandardError:
		return "ReadyReadStandardError"
	case TypeProcessFinished:
		return "ProcessFinished"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// Token is the opaque, per-process routing key carried on every packet.
type Token uint64

// headerSize is the length of the (type, token) prefix that total_length
// counts but that the caller never sees separately from the payload.
const headerSize = 1 + 8 // type (u8) + token (u64)

// lengthFieldSize is the size of the leading total_length field itself,
// which is not included in total_length.
const lengthFieldSize = 4

// MaxFrameSize caps total_length as a sanity bound against a corrupted or
// malicious peer; it is far larger than any legitimate StartProcess/Write
// payload this protocol is expected to carry.
const MaxFrameSize = 64 * 1024 * 1024

// Packet is implemented by every payload type that can cross the wire.
type Packet interface {
	PacketType() PacketType
	PacketToken() Token
}

// Serialize produces a complete, self-delimited frame for p.
func Serialize(p Packet) []byte {
	payload := encodePayload(p)
	total := headerSize + len(payload)
	buf := make([]byte, lengthFieldSize+total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	buf[4] = byte(p.PacketType())
	binary.LittleEndian.PutUint64(buf[5:13], uint64(p.PacketToken()))
	copy(buf[13:], payload)
	return buf
}

func encodePayload(p Packet) []byte {
	switch v := p.(type) {
	case *StartProcessPacket:
		return v.encode()
	case *WritePacket:
		return v.encode()
	case *StopProcessPacket:
		return nil
	case *ShutdownPacket:
		return nil
	case *ProcessErrorPacket:
		return v.encode()
	case *ProcessStartedPacket:
		return v.encode()
	case *ReadyReadStandardOutputPacket:
		return v.encode()
	case *ReadyReadStandardErrorPacket:
		return v.encode()
	case *ProcessFinishedPacket:
		return v.encode()
	default:
		panic(fmt.Sprintf("wire: unregistered packet type %T", p))
	}
}

// InvalidSizeError reports a total_length that cannot possibly be a valid
// frame: too small to hold the common header, or larger than MaxFrameSize.
// It is always fatal to the connection that produced it.
type InvalidSizeError struct {
	Size int
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("wire: invalid packet size %d", e.Size)
}

// UnknownTypeError reports a type tag with no known payload decoder. Like
// InvalidSizeError, it is fatal: the stream can no longer be trusted to be
// framed correctly once a tag is unrecognized.
type UnknownTypeError struct {
	Type PacketType
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("wire: unknown packet type %d", uint8(e.Type))
}

// Parser is a streaming decoder: feed it bytes as they arrive and it
// reassembles complete frames across arbitrary read boundaries.
type Parser struct {
	buf           []byte
	nextFrameSize int // -1 until the length prefix of the in-flight frame is known
}

// NewParser returns a parser ready to accept bytes via Feed.
func NewParser() *Parser {
	return &Parser{nextFrameSize: -1}
}

// Feed appends newly read bytes to the parser's internal buffer.
func (p *Parser) Feed(b []byte) {
	p.buf = append(p.buf, b...)
}

// Next attempts to decode one complete packet from previously fed bytes.
// It returns (nil, nil) when more bytes are needed before a full frame is
// available; it returns a non-nil error only for a fatal decode fault, at
// which point the caller must treat the connection as dead and must not
// call Next again.
func (p *Parser) Next() (Packet, error) {
	if p.nextFrameSize == -1 {
		if len(p.buf) < lengthFieldSize {
			return nil, nil
		}
		size := int(binary.LittleEndian.Uint32(p.buf[0:lengthFieldSize]))
		if size < headerSize || size > MaxFrameSize {
			return nil, &InvalidSizeError{Size: size}
		}
		p.nextFrameSize = size
	}
	total := lengthFieldSize + p.nextFrameSize
	if len(p.buf) < total {
		return nil, nil
	}
	frame := p.buf[lengthFieldSize:total]
	p.buf = p.buf[total:]
	p.nextFrameSize = -1

	typ := PacketType(frame[0])
	token := Token(binary.LittleEndian.Uint64(frame[1:9]))
	payload := frame[headerSize:]
	return decode(typ, token, payload)
}

func decode(typ PacketType, token Token, payload []byte) (Packet, error) {
	switch typ {
	case TypeShutdown:
		return &ShutdownPacket{}, nil
	case TypeStartProcess:
		return decodeStartProcess(token, payload)
	case TypeWrite:
		return decodeWrite(token, payload)
	case TypeStopProcess:
		return &StopProcessPacket{token: token}, nil
	case TypeProcessError:
		return decodeProcessError(token, payload)
	case TypeProcessStarted:
		return decodeProcessStarted(token, payload)
	case TypeReadyReadStandardOutput:
		return decodeReadyReadStandardOutput(token, payload)
	case TypeReadyReadStandardError:
		return decodeReadyReadStandardError(token, payload)
	case TypeProcessFinished:
		return decodeProcessFinished(token, payload)
	default:
		return nil, &UnknownTypeError{Type: typ}
	}
}
