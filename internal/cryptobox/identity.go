package cryptobox

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Identity is an endpoint's long-term Ed25519 keypair. The raw 32-byte
// public key IS the identity on the wire and in persistence; there is no
// separate username or certificate binding.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateIdentity creates a new random Ed25519 identity.
func GenerateIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptobox: generate identity: %w", err)
	}
	return &Identity{Public: pub, Private: priv}, nil
}

// IdentityFromPrivateKey reconstructs an Identity from a stored 64-byte
// Ed25519 private key (seed || public key, as produced by crypto/ed25519).
func IdentityFromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("cryptobox: invalid private key length %d", len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{Public: pub, Private: priv}, nil
}

// Array returns the identity's public key as a fixed-size array, the form
// used in packet payloads.
func (id *Identity) Array() [32]byte {
	var out [32]byte
	copy(out[:], id.Public)
	return out
}

// x25519Scalar derives this identity's X25519 private scalar from its
// Ed25519 seed, for use as one side of a Diffie-Hellman exchange.
func (id *Identity) x25519Scalar() [32]byte {
	seed := id.Private.Seed()
	return SeedToX25519Scalar(seed)
}
