package cryptobox

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ErrInvalidSignature is returned by Verify/VerifyRaw when a detached
// signature does not validate against the claimed public key.
var ErrInvalidSignature = errors.New("cryptobox: signature verification failed")

// Sign hashes payload with BLAKE2b-256 and produces a detached Ed25519
// signature over the digest. This is the general-purpose signing path used
// for MESSAGE/UPDATE_MESSAGE/DELETE_MESSAGE packets.
func Sign(priv ed25519.PrivateKey, payload []byte) ([64]byte, error) {
	digest := blake2b.Sum256(payload)
	sig := ed25519.Sign(priv, digest[:])
	var out [64]byte
	if len(sig) != len(out) {
		return out, fmt.Errorf("cryptobox: unexpected signature length %d", len(sig))
	}
	copy(out[:], sig)
	return out, nil
}

// Verify checks a detached signature produced by Sign.
func Verify(pub ed25519.PublicKey, payload []byte, sig [64]byte) error {
	digest := blake2b.Sum256(payload)
	if !ed25519.Verify(pub, digest[:], sig[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// SignRaw signs the given bytes directly, with no hashing step. The
// authentication handshake's AUTH reply signs the server's raw challenge
// bytes this way, rather than a BLAKE2b digest of them.
func SignRaw(priv ed25519.PrivateKey, raw []byte) [64]byte {
	sig := ed25519.Sign(priv, raw)
	var out [64]byte
	copy(out[:], sig)
	return out
}

// VerifyRaw checks a signature produced by SignRaw.
func VerifyRaw(pub ed25519.PublicKey, raw []byte, sig [64]byte) error {
	if !ed25519.Verify(pub, raw, sig[:]) {
		return ErrInvalidSignature
	}
	return nil
}
