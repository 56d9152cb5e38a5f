package cryptobox

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

// SessionKeys holds the two directional symmetric keys produced by a key
// exchange: Tx for packets this endpoint sends, Rx for packets it receives.
type SessionKeys struct {
	Tx [32]byte
	Rx [32]byte
}

// DeriveSessionKeys performs an X25519 Diffie-Hellman exchange between self
// and peer (converting both Ed25519 identities to X25519 along the way) and
// splits the resulting shared secret into directional send/receive keys.
//
// Role assignment is deterministic and symmetric: whichever raw 32-byte
// identity compares lexicographically smaller plays the "client" role in
// the underlying crypto_kx-style construction, so both endpoints agree on
// which half of the derived material is Tx and which is Rx without needing
// to know who dialed whom.
func DeriveSessionKeys(self *Identity, peer ed25519.PublicKey) (*SessionKeys, error) {
	if len(peer) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("cryptobox: invalid peer public key length %d", len(peer))
	}

	var peerArr [32]byte
	copy(peerArr[:], peer)

	selfScalar := self.x25519Scalar()
	peerX25519 := PublicKeyToX25519(peerArr)

	shared, err := curve25519.X25519(selfScalar[:], peerX25519[:])
	if err != nil {
		return nil, fmt.Errorf("cryptobox: X25519: %w", err)
	}

	selfArr := self.Array()
	isClient := bytes.Compare(selfArr[:], peerArr[:]) < 0

	var clientPub, serverPub [32]byte
	if isClient {
		clientPub, serverPub = selfArr, peerArr
	} else {
		clientPub, serverPub = peerArr, selfArr
	}

	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, fmt.Errorf("cryptobox: new blake2b: %w", err)
	}
	h.Write(shared)
	h.Write(clientPub[:])
	h.Write(serverPub[:])
	digest := h.Sum(nil)

	clientRx, serverRx := digest[:32], digest[32:]

	keys := &SessionKeys{}
	if isClient {
		// client receives on clientRx, sends on serverRx (the server's "receive" half)
		copy(keys.Rx[:], clientRx)
		copy(keys.Tx[:], serverRx)
	} else {
		copy(keys.Rx[:], serverRx)
		copy(keys.Tx[:], clientRx)
	}

	return keys, nil
}
