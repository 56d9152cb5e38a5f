// Package protocol implements the wire codec shared by the relay and the
// client daemon: a 5-byte header, an optional data section, and an optional
// trailing Ed25519 signature.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet types that carry client-originated payload and a signature.
// Server-originated responses (INFO/ERROR in the older, separate-status-byte
// wire form) instead put one of the Status* codes directly in the type
// field; TypeError and TypeInfo are kept only as generic category markers
// for code that builds a response without a specific status in hand.
const (
	TypeAuth          byte = 1
	TypeMessage       byte = 2
	TypeUpdateMessage byte = 3
	TypeDeleteMessage byte = 4
	TypeError         byte = 5
	TypeInfo          byte = 6
)

// Status codes. A server-origin packet carries one of these in its type
// field instead of TypeError/TypeInfo; none of them ever carries a
// signature. Numbered from 7 up so they never collide with the four
// client-originated packet types above.
const (
	StatusSuccess           byte = 7
	StatusInvalidType       byte = 8
	StatusInvalidLength     byte = 9
	StatusTooLong           byte = 10
	StatusReadingSocket     byte = 11
	StatusWritingSocket     byte = 12
	StatusUnknownUser       byte = 13
	StatusMemoryAllocation  byte = 14
	StatusErrorEncrypt      byte = 15
	StatusErrorDecrypt      byte = 16
	StatusErrorAuthenticate byte = 17
	StatusErrorIntegrity    byte = 18
	StatusUnauthorised      byte = 19
	StatusAuthorised        byte = 20
	StatusClosedConnection  byte = 21
)

const (
	// HeaderSize is the fixed 1-byte type + 4-byte little-endian length header.
	HeaderSize = 5

	// MaxDataLength bounds a single packet's data section.
	MaxDataLength = 8192

	// SignatureSize is the size of a detached Ed25519 signature.
	SignatureSize = 64
)

// Packet is a single frame on the wire: a type byte, a length-prefixed data
// section, and (for packet types other than INFO/ERROR with non-zero length)
// a trailing detached Ed25519 signature.
type Packet struct {
	Type      byte
	Data      []byte
	Signature [SignatureSize]byte
}

func carriesSignature(typ byte, dataLen int) bool {
	if dataLen == 0 {
		return false
	}
	switch typ {
	case TypeAuth, TypeMessage, TypeUpdateMessage, TypeDeleteMessage:
		return true
	default:
		return false
	}
}

// Encode serializes a packet to its wire representation.
func Encode(p *Packet) ([]byte, error) {
	if len(p.Data) > MaxDataLength {
		return nil, fmt.Errorf("protocol: data length %d exceeds max %d", len(p.Data), MaxDataLength)
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(p.Data)+SignatureSize)
	buf[0] = p.Type
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(p.Data)))
	buf = append(buf, p.Data...)

	if carriesSignature(p.Type, len(p.Data)) {
		buf = append(buf, p.Signature[:]...)
	}

	return buf, nil
}

// Write encodes and writes a packet to w.
func Write(w io.Writer, p *Packet) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("protocol: write packet: %w", err)
	}
	return nil
}

// FrameError classifies a failure decoding a frame off the wire with the
// Status code a courtesy reply should carry, per the Decode taxonomy: EOF
// before a complete header means the peer already closed the connection
// (ClosedConnection, no reply possible), any other failure reading the
// header, data or signature is ReadingSocket, and an oversize declared
// length is TooLong.
type FrameError struct {
	Status byte
	Err    error
}

func (e *FrameError) Error() string { return e.Err.Error() }
func (e *FrameError) Unwrap() error { return e.Err }

func newFrameError(status byte, err error) *FrameError {
	return &FrameError{Status: status, Err: err}
}

func statusForReadErr(err error) byte {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return StatusClosedConnection
	}
	return StatusReadingSocket
}

// Read reads one complete packet from r. Data buffers carry one extra
// trailing zero byte (not included in the returned length), matching the
// original implementation's null-terminated read path. Any error is a
// *FrameError.
func Read(r io.Reader) (*Packet, error) {
	_, p, err := ReadFrame(r)
	return p, err
}

// ReadFrame reads one complete packet from r like Read, but also returns
// the exact bytes read off the wire (header, data, and signature, minus
// the extra trailing zero byte Read's Data slices carry). The relay uses
// this to forward a MESSAGE packet byte-for-byte without re-encoding it.
// Any error returned is a *FrameError, so a caller can reply with the
// matching status code before tearing the connection down.
func ReadFrame(r io.Reader) ([]byte, *Packet, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, nil, newFrameError(statusForReadErr(err), fmt.Errorf("protocol: read header: %w", err))
	}

	p := &Packet{Type: header[0]}
	length := binary.LittleEndian.Uint32(header[1:5])

	if length > MaxDataLength {
		return nil, nil, newFrameError(StatusTooLong, fmt.Errorf("protocol: data length %d exceeds max %d", length, MaxDataLength))
	}

	raw := make([]byte, HeaderSize, HeaderSize+int(length)+SignatureSize)
	copy(raw, header)

	if !carriesSignature(p.Type, int(length)) {
		if length > 0 {
			buf := make([]byte, length+1)
			if _, err := io.ReadFull(r, buf[:length]); err != nil {
				return nil, nil, newFrameError(StatusReadingSocket, fmt.Errorf("protocol: read data: %w", err))
			}
			p.Data = buf[:length]
			raw = append(raw, p.Data...)
		}
		return raw, p, nil
	}

	buf := make([]byte, length+1)
	if _, err := io.ReadFull(r, buf[:length]); err != nil {
		return nil, nil, newFrameError(StatusReadingSocket, fmt.Errorf("protocol: read data: %w", err))
	}
	p.Data = buf[:length]
	raw = append(raw, p.Data...)

	if _, err := io.ReadFull(r, p.Signature[:]); err != nil {
		return nil, nil, newFrameError(StatusReadingSocket, fmt.Errorf("protocol: read signature: %w", err))
	}
	raw = append(raw, p.Signature[:]...)

	return raw, p, nil
}

// NewFakeSignaturePacket builds a server-origin status packet (INFO or
// ERROR class alike) with an all-zero signature. These are never verified
// by the receiver; status is one of the Status* constants.
func NewFakeSignaturePacket(status byte, message string) *Packet {
	return &Packet{Type: status, Data: []byte(message)}
}

// TypeName returns a human-readable name for a packet type, for logging.
func TypeName(t byte) string {
	switch t {
	case TypeAuth:
		return "AUTH"
	case TypeMessage:
		return "MESSAGE"
	case TypeUpdateMessage:
		return "UPDATE_MESSAGE"
	case TypeDeleteMessage:
		return "DELETE_MESSAGE"
	case TypeError:
		return "ERROR"
	case TypeInfo:
		return "INFO"
	default:
		if name := StatusName(t); name != "" {
			return name
		}
		return fmt.Sprintf("UNKNOWN(0x%02x)", t)
	}
}

// StatusName returns a human-readable name for a status code, or "" if t is
// not a recognised status.
func StatusName(t byte) string {
	switch t {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidType:
		return "INVALID_TYPE"
	case StatusInvalidLength:
		return "INVALID_LENGTH"
	case StatusTooLong:
		return "TOO_LONG"
	case StatusReadingSocket:
		return "READING_SOCKET"
	case StatusWritingSocket:
		return "WRITING_SOCKET"
	case StatusUnknownUser:
		return "UNKNOWN_USER"
	case StatusMemoryAllocation:
		return "MEMORY_ALLOCATION"
	case StatusErrorEncrypt:
		return "ERROR_ENCRYPT"
	case StatusErrorDecrypt:
		return "ERROR_DECRYPT"
	case StatusErrorAuthenticate:
		return "ERROR_AUTHENTICATE"
	case StatusErrorIntegrity:
		return "ERROR_INTEGRITY"
	case StatusUnauthorised:
		return "UNAUTHORISED"
	case StatusAuthorised:
		return "AUTHORISED"
	case StatusClosedConnection:
		return "CLOSED_CONNECTION"
	default:
		return ""
	}
}
