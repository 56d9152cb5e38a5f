package cryptobox

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func generateTestKey() [32]byte {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		panic(err)
	}
	return key
}

func TestSealOpenRoundtrip(t *testing.T) {
	key := generateTestKey()

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{"empty message", []byte{}},
		{"short message", []byte("hello")},
		{"max-size message", make([]byte, 8192)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			nonce, ciphertext, err := Seal(key, tc.plaintext)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(ciphertext) != len(tc.plaintext)+SealedSize {
				t.Errorf("ciphertext length = %d, want %d", len(ciphertext), len(tc.plaintext)+SealedSize)
			}

			plaintext, err := Open(key, nonce, ciphertext)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(plaintext, tc.plaintext) {
				t.Errorf("Open() = %v, want %v", plaintext, tc.plaintext)
			}
		})
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := generateTestKey()
	nonce, ciphertext, err := Seal(key, []byte("the message"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	ciphertext[0] ^= 0xFF
	if _, err := Open(key, nonce, ciphertext); err == nil {
		t.Fatal("Open() expected error for tampered ciphertext, got nil")
	}
}

func TestSealUsesFreshNonces(t *testing.T) {
	key := generateTestKey()
	n1, _, _ := Seal(key, []byte("a"))
	n2, _, _ := Seal(key, []byte("a"))
	if n1 == n2 {
		t.Fatal("Seal() produced the same nonce twice")
	}
}
