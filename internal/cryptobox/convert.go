package cryptobox

import (
	"crypto/sha512"
	"math/big"
)

// fieldPrime is 2^255 - 19, the prime underlying Curve25519 and Ed25519.
var fieldPrime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}()

// SeedToX25519Scalar converts an Ed25519 seed (our own private key material)
// into the clamped X25519 scalar used for Diffie-Hellman. This is the
// standard derivation shared by both curves' key generation: hash the seed
// with SHA-512 and clamp the low half.
func SeedToX25519Scalar(seed []byte) [32]byte {
	h := sha512.Sum512(seed)
	var scalar [32]byte
	copy(scalar[:], h[:32])
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return scalar
}

// PublicKeyToX25519 converts an Ed25519 public key into its birationally
// equivalent X25519 (Montgomery) public key, so that a peer we only know by
// their signing identity can still be used as an ECDH target.
//
// The map only needs the Edwards y-coordinate (the sign of x is irrelevant
// to the resulting Montgomery u-coordinate): u = (1+y) / (1-y) mod p.
func PublicKeyToX25519(ed25519PublicKey [32]byte) [32]byte {
	yBytes := make([]byte, 32)
	copy(yBytes, ed25519PublicKey[:])
	yBytes[31] &= 0x7f // clear the sign-of-x bit

	y := leBytesToInt(yBytes)

	one := big.NewInt(1)
	numerator := new(big.Int).Add(one, y)
	numerator.Mod(numerator, fieldPrime)

	denominator := new(big.Int).Sub(one, y)
	denominator.Mod(denominator, fieldPrime)
	denominator.ModInverse(denominator, fieldPrime)

	u := new(big.Int).Mul(numerator, denominator)
	u.Mod(u, fieldPrime)

	var out [32]byte
	intToLEBytes(u, out[:])
	return out
}

func leBytesToInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}

func intToLEBytes(n *big.Int, out []byte) {
	be := n.FillBytes(make([]byte, len(out)))
	for i, v := range be {
		out[len(out)-1-i] = v
	}
}
