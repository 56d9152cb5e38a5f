package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
	}{
		{
			name: "AUTH with signature",
			pkt: &Packet{
				Type:      TypeAuth,
				Data:      bytes.Repeat([]byte{0xAB}, IdentitySize),
				Signature: [SignatureSize]byte{1, 2, 3},
			},
		},
		{
			name: "MESSAGE with signature",
			pkt: &Packet{
				Type:      TypeMessage,
				Data:      bytes.Repeat([]byte{0x11}, 96),
				Signature: [SignatureSize]byte{9, 9, 9},
			},
		},
		{
			name: "INFO has no signature regardless of status byte",
			pkt: &Packet{
				Type: TypeInfo,
				Data: []byte("authorised"),
			},
		},
		{
			name: "empty AUTH challenge carries no signature",
			pkt:  &Packet{Type: TypeAuth, Data: nil},
		},
		{
			name: "status packet carries no signature regardless of data",
			pkt:  &Packet{Type: StatusUnknownUser, Data: []byte("no such user")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.pkt)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			decoded, err := Read(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}

			if decoded.Type != tt.pkt.Type {
				t.Errorf("Type = %v, want %v", decoded.Type, tt.pkt.Type)
			}
			if !bytes.Equal(decoded.Data, tt.pkt.Data) {
				t.Errorf("Data = %v, want %v", decoded.Data, tt.pkt.Data)
			}
			if carriesSignature(tt.pkt.Type, len(tt.pkt.Data)) && decoded.Signature != tt.pkt.Signature {
				t.Errorf("Signature = %v, want %v", decoded.Signature, tt.pkt.Signature)
			}
		})
	}
}

func TestReadFrameReturnsExactWireBytes(t *testing.T) {
	pkt := &Packet{
		Type:      TypeMessage,
		Data:      bytes.Repeat([]byte{0x42}, 96),
		Signature: [SignatureSize]byte{7, 7, 7},
	}
	encoded, err := Encode(pkt)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	raw, decoded, err := ReadFrame(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(raw, encoded) {
		t.Errorf("ReadFrame() raw = %x, want %x", raw, encoded)
	}
	if decoded.Type != pkt.Type {
		t.Errorf("Type = %v, want %v", decoded.Type, pkt.Type)
	}
}

func TestEncodeRejectsOversizedData(t *testing.T) {
	pkt := &Packet{Type: TypeMessage, Data: make([]byte, MaxDataLength+1)}
	if _, err := Encode(pkt); err == nil {
		t.Fatal("Encode() expected error for oversized data, got nil")
	}
}

func TestReadRejectsOversizedLength(t *testing.T) {
	header := make([]byte, HeaderSize)
	header[0] = TypeMessage
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	header[4] = 0xFF

	_, err := Read(bytes.NewReader(header))
	if err == nil {
		t.Fatal("Read() expected error for oversized length, got nil")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("Read() error type = %T, want *FrameError", err)
	}
	if frameErr.Status != StatusTooLong {
		t.Errorf("Status = %v, want StatusTooLong", frameErr.Status)
	}
}

func TestReadFrameClassifiesClosedConnection(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader(nil))
	if err == nil {
		t.Fatal("ReadFrame() expected error for empty reader, got nil")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("ReadFrame() error type = %T, want *FrameError", err)
	}
	if frameErr.Status != StatusClosedConnection {
		t.Errorf("Status = %v, want StatusClosedConnection", frameErr.Status)
	}
}

func TestMessagePayloadRoundTrip(t *testing.T) {
	m := &MessagePayload{
		Ciphertext: []byte("ciphertext-and-tag-bytes"),
		Created:    1700000000,
	}
	for i := range m.Sender {
		m.Sender[i] = byte(i)
	}
	for i := range m.Recipient {
		m.Recipient[i] = byte(255 - i)
	}
	for i := range m.Nonce {
		m.Nonce[i] = byte(i * 2)
	}

	encoded := EncodeMessagePayload(m)
	decoded, err := DecodeMessagePayload(encoded)
	if err != nil {
		t.Fatalf("DecodeMessagePayload() error = %v", err)
	}

	if decoded.Sender != m.Sender || decoded.Recipient != m.Recipient || decoded.Nonce != m.Nonce {
		t.Fatal("decoded fixed fields do not match original")
	}
	if !bytes.Equal(decoded.Ciphertext, m.Ciphertext) {
		t.Errorf("Ciphertext = %v, want %v", decoded.Ciphertext, m.Ciphertext)
	}
	if decoded.Created != m.Created {
		t.Errorf("Created = %d, want %d", decoded.Created, m.Created)
	}
}

func TestDecodeMessagePayloadTooShort(t *testing.T) {
	if _, err := DecodeMessagePayload(make([]byte, messageFixedOverhead-1)); err == nil {
		t.Fatal("DecodeMessagePayload() expected error for short payload, got nil")
	}
}
