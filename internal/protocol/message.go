package protocol

import (
	"encoding/binary"
	"fmt"
)

// Field sizes for a MESSAGE packet's data section:
// sender (32) || recipient (32) || nonce (24) || ciphertext (variable, includes
// the 16-byte AEAD tag) || creation timestamp (8, little-endian Unix seconds).
const (
	IdentitySize  = 32
	NonceSize     = 24
	TimestampSize = 8

	messageFixedOverhead = IdentitySize*2 + NonceSize + TimestampSize
)

// MessagePayload is the decoded form of a MESSAGE/UPDATE_MESSAGE packet's
// data section.
type MessagePayload struct {
	Sender     [IdentitySize]byte
	Recipient  [IdentitySize]byte
	Nonce      [NonceSize]byte
	Ciphertext []byte
	Created    int64
}

// EncodeMessagePayload lays out a MessagePayload onto the wire.
func EncodeMessagePayload(m *MessagePayload) []byte {
	buf := make([]byte, messageFixedOverhead+len(m.Ciphertext))
	offset := 0
	copy(buf[offset:], m.Sender[:])
	offset += IdentitySize
	copy(buf[offset:], m.Recipient[:])
	offset += IdentitySize
	copy(buf[offset:], m.Nonce[:])
	offset += NonceSize
	copy(buf[offset:], m.Ciphertext)
	offset += len(m.Ciphertext)
	binary.LittleEndian.PutUint64(buf[offset:], uint64(m.Created))
	return buf
}

// DecodeMessagePayload parses a MESSAGE/UPDATE_MESSAGE packet's data section.
func DecodeMessagePayload(data []byte) (*MessagePayload, error) {
	if len(data) < messageFixedOverhead {
		return nil, fmt.Errorf("protocol: message payload too short: %d bytes", len(data))
	}

	m := &MessagePayload{}
	offset := 0
	copy(m.Sender[:], data[offset:offset+IdentitySize])
	offset += IdentitySize
	copy(m.Recipient[:], data[offset:offset+IdentitySize])
	offset += IdentitySize
	copy(m.Nonce[:], data[offset:offset+NonceSize])
	offset += NonceSize

	ciphertextLen := len(data) - offset - TimestampSize
	m.Ciphertext = make([]byte, ciphertextLen)
	copy(m.Ciphertext, data[offset:offset+ciphertextLen])
	offset += ciphertextLen

	m.Created = int64(binary.LittleEndian.Uint64(data[offset : offset+TimestampSize]))

	return m, nil
}

// DeleteMessagePayload identifies a message for deletion by sender, recipient
// and creation timestamp (there is no independent message ID on the wire).
type DeleteMessagePayload struct {
	Sender    [IdentitySize]byte
	Recipient [IdentitySize]byte
	Created   int64
}

// EncodeDeleteMessagePayload lays out a DeleteMessagePayload onto the wire.
func EncodeDeleteMessagePayload(d *DeleteMessagePayload) []byte {
	buf := make([]byte, IdentitySize*2+TimestampSize)
	offset := 0
	copy(buf[offset:], d.Sender[:])
	offset += IdentitySize
	copy(buf[offset:], d.Recipient[:])
	offset += IdentitySize
	binary.LittleEndian.PutUint64(buf[offset:], uint64(d.Created))
	return buf
}

// DecodeDeleteMessagePayload parses a DELETE_MESSAGE packet's data section.
func DecodeDeleteMessagePayload(data []byte) (*DeleteMessagePayload, error) {
	want := IdentitySize*2 + TimestampSize
	if len(data) < want {
		return nil, fmt.Errorf("protocol: delete-message payload too short: %d bytes", len(data))
	}
	d := &DeleteMessagePayload{}
	offset := 0
	copy(d.Sender[:], data[offset:offset+IdentitySize])
	offset += IdentitySize
	copy(d.Recipient[:], data[offset:offset+IdentitySize])
	offset += IdentitySize
	d.Created = int64(binary.LittleEndian.Uint64(data[offset : offset+TimestampSize]))
	return d, nil
}
