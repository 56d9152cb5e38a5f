package relay

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/duskline/vesper/internal/cryptobox"
	"github.com/duskline/vesper/internal/protocol"
)

const challengeSize = 32

// handshake drives the server side of the three-packet challenge-response
// authentication. It runs synchronously in the connection's own goroutine,
// before the connection is registered with a worker, so workers never see
// an fd that hasn't authenticated.
func (a *Acceptor) handshake(netConn net.Conn) ([32]byte, error) {
	var identity [32]byte

	if a.handshakeTimeout > 0 {
		netConn.SetDeadline(time.Now().Add(a.handshakeTimeout))
		defer netConn.SetDeadline(time.Time{})
	}

	var challenge [challengeSize]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return identity, fmt.Errorf("relay: generate challenge: %w", err)
	}

	challengePkt := &protocol.Packet{Type: protocol.TypeAuth, Data: challenge[:]}
	if err := protocol.Write(netConn, challengePkt); err != nil {
		return identity, fmt.Errorf("relay: send challenge: %w", err)
	}

	response, err := protocol.Read(netConn)
	if err != nil {
		return identity, fmt.Errorf("relay: read auth response: %w", err)
	}

	if response.Type != protocol.TypeAuth || len(response.Data) != ed25519.PublicKeySize {
		a.sendUnauthorised(netConn)
		return identity, fmt.Errorf("relay: malformed auth response")
	}

	copy(identity[:], response.Data)
	if err := cryptobox.VerifyRaw(ed25519.PublicKey(response.Data), challenge[:], response.Signature); err != nil {
		a.sendUnauthorised(netConn)
		return identity, fmt.Errorf("relay: auth signature invalid: %w", err)
	}

	authorised := protocol.NewFakeSignaturePacket(protocol.StatusAuthorised, "")
	if err := protocol.Write(netConn, authorised); err != nil {
		return identity, fmt.Errorf("relay: send authorised: %w", err)
	}

	return identity, nil
}

func (a *Acceptor) sendUnauthorised(netConn net.Conn) {
	pkt := protocol.NewFakeSignaturePacket(protocol.StatusUnauthorised, "")
	protocol.Write(netConn, pkt)
}
