package cryptobox

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedSize is the AEAD tag overhead added to every ciphertext.
const SealedSize = chacha20poly1305.Overhead

// Seal encrypts plaintext under key with a freshly generated 24-byte nonce,
// using XChaCha20-Poly1305-IETF. The nonce and ciphertext are returned
// separately; the message codec is responsible for their wire placement.
func Seal(key [32]byte, plaintext []byte) (nonce [24]byte, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nonce, nil, fmt.Errorf("cryptobox: new AEAD: %w", err)
	}

	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, nil, fmt.Errorf("cryptobox: generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce[:], plaintext, nil)
	return nonce, ciphertext, nil
}

// Open decrypts and authenticates a ciphertext produced by Seal.
func Open(key [32]byte, nonce [24]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptobox: new AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptobox: decrypt: %w", err)
	}
	return plaintext, nil
}
