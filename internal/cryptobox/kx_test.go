package cryptobox

import (
	"testing"

	"golang.org/x/crypto/curve25519"
)

func TestDeriveSessionKeysAgreeAndCross(t *testing.T) {
	alice, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}
	bob, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}

	aliceKeys, err := DeriveSessionKeys(alice, bob.Public)
	if err != nil {
		t.Fatalf("DeriveSessionKeys(alice) error = %v", err)
	}
	bobKeys, err := DeriveSessionKeys(bob, alice.Public)
	if err != nil {
		t.Fatalf("DeriveSessionKeys(bob) error = %v", err)
	}

	if aliceKeys.Tx != bobKeys.Rx {
		t.Error("alice.Tx should equal bob.Rx")
	}
	if aliceKeys.Rx != bobKeys.Tx {
		t.Error("alice.Rx should equal bob.Tx")
	}
	if aliceKeys.Tx == aliceKeys.Rx {
		t.Error("Tx and Rx must not collide")
	}
}

func TestDeriveSessionKeysDeterministic(t *testing.T) {
	alice, _ := GenerateIdentity()
	bob, _ := GenerateIdentity()

	k1, err := DeriveSessionKeys(alice, bob.Public)
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	k2, err := DeriveSessionKeys(alice, bob.Public)
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	if *k1 != *k2 {
		t.Error("DeriveSessionKeys() is not deterministic for the same identity pair")
	}
}

func TestPublicKeyToX25519MatchesScalarBaseMult(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}

	scalar := id.x25519Scalar()
	want, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		t.Fatalf("curve25519.X25519() error = %v", err)
	}

	got := PublicKeyToX25519(id.Array())

	if !bytesEqual(got[:], want) {
		t.Errorf("PublicKeyToX25519() = %x, want %x", got, want)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
