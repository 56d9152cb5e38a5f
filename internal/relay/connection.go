package relay

import (
	"encoding/hex"
	"net"
	"sync"
	"sync/atomic"

	"github.com/duskline/vesper/internal/protocol"
)

// State is a connection's position in the per-connection state machine:
// Accepted -> AuthChallengeSent -> AuthVerified -> Active -> Closed.
type State int32

const (
	StateAccepted State = iota
	StateAuthChallengeSent
	StateAuthVerified
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "ACCEPTED"
	case StateAuthChallengeSent:
		return "AUTH_CHALLENGE_SENT"
	case StateAuthVerified:
		return "AUTH_VERIFIED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn pairs a socket with the identity it authenticated as. It is owned by
// exactly one Worker's table for its lifetime.
type Conn struct {
	net net.Conn

	identity    [32]byte
	identityHex string

	state   atomic.Int32
	writeMu sync.Mutex

	closeOnce sync.Once
}

func newConn(netConn net.Conn) *Conn {
	c := &Conn{net: netConn}
	c.state.Store(int32(StateAccepted))
	return c
}

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

func (c *Conn) getState() State { return State(c.state.Load()) }

func (c *Conn) setIdentity(identity [32]byte) {
	c.identity = identity
	c.identityHex = hex.EncodeToString(identity[:])
}

// writePacket encodes and writes p, serialised against concurrent writes
// from other connections forwarding a MESSAGE to this one.
func (c *Conn) writePacket(p *protocol.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.Write(c.net, p)
}

// writeRaw writes pre-encoded wire bytes verbatim, used to forward a
// packet to its recipient without decoding and re-encoding it.
func (c *Conn) writeRaw(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.net.Write(raw)
	return err
}

// Close closes the underlying socket exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		err = c.net.Close()
	})
	return err
}
