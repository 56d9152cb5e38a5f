package client

import (
	"fmt"
	"net"

	"github.com/duskline/vesper/internal/cryptobox"
	"github.com/duskline/vesper/internal/protocol"
)

// handshake drives the client side of the three-packet challenge-response
// authentication against an already-dialed relay connection.
func handshake(conn net.Conn, id *cryptobox.Identity) error {
	challenge, err := protocol.Read(conn)
	if err != nil {
		return fmt.Errorf("client: read challenge: %w", err)
	}
	if challenge.Type != protocol.TypeAuth {
		return fmt.Errorf("client: expected AUTH challenge, got %s", protocol.TypeName(challenge.Type))
	}

	sig := cryptobox.SignRaw(id.Private, challenge.Data)
	reply := &protocol.Packet{Type: protocol.TypeAuth, Data: id.Public, Signature: sig}
	if err := protocol.Write(conn, reply); err != nil {
		return fmt.Errorf("client: send auth response: %w", err)
	}

	result, err := protocol.Read(conn)
	if err != nil {
		return fmt.Errorf("client: read auth result: %w", err)
	}
	if result.Type != protocol.StatusAuthorised {
		return fmt.Errorf("client: relay rejected authentication (%s)", protocol.TypeName(result.Type))
	}

	return nil
}
