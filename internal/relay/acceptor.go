// Package relay implements the relay server: an acceptor that authenticates
// inbound TCP connections and a fixed pool of workers that forward MESSAGE,
// UPDATE_MESSAGE, and DELETE_MESSAGE packets between authenticated
// identities. The relay never decrypts a payload and never holds a
// symmetric session key.
package relay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/duskline/vesper/internal/auditlog"
	"github.com/duskline/vesper/internal/cryptobox"
	"github.com/duskline/vesper/internal/logging"
	"github.com/duskline/vesper/internal/presence"
	"github.com/duskline/vesper/internal/protocol"
)

// Acceptor owns the listening socket, the fixed worker pool, and the
// process-wide admission counter. It is the only producer of new entries
// in the workers' connection tables.
type Acceptor struct {
	cfg     *Config
	logger  *logging.Logger
	workers []*Worker

	listener net.Listener

	admissionMu sync.Mutex
	nextWorker  uint64

	handshakeTimeout time.Duration
	idleTimeout      time.Duration

	presenceDir *presence.Directory
	auditLog    *auditlog.Log

	wg sync.WaitGroup
}

// New builds an Acceptor from cfg. Callers attach optional presence/audit
// backends with AttachPresence/AttachAudit before calling ListenAndServe.
func New(cfg *Config, logger *logging.Logger) *Acceptor {
	workers := make([]*Worker, cfg.Limits.WorkerCount)
	for i := range workers {
		workers[i] = newWorker(i)
	}

	return &Acceptor{
		cfg:              cfg,
		logger:           logger,
		workers:          workers,
		handshakeTimeout: time.Duration(cfg.Limits.HandshakeTimeoutSecs) * time.Second,
		idleTimeout:      cfg.IdleTimeout(),
	}
}

// AttachPresence wires an optional multi-instance presence directory.
func (a *Acceptor) AttachPresence(d *presence.Directory) { a.presenceDir = d }

// AttachAudit wires an optional connection-event audit log.
func (a *Acceptor) AttachAudit(l *auditlog.Log) { a.auditLog = l }

// Listen binds the configured address. Callers that need the bound address
// before connections start arriving (tests using ":0") call Listen followed
// by Serve; ListenAndServe does both in one call.
func (a *Acceptor) Listen() error {
	listener, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("relay: listen: %w", err)
	}
	a.listener = listener
	return nil
}

// Addr returns the listener's bound address. Only meaningful after Listen.
func (a *Acceptor) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Serve accepts and handles connections until the listener is closed by
// Shutdown. Listen must have been called first.
func (a *Acceptor) Serve() error {
	a.logger.Infof("listening on %s with %d workers", a.listener.Addr(), len(a.workers))

	for {
		netConn, err := a.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("relay: accept: %w", err)
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.serve(netConn)
		}()
	}
}

// ListenAndServe binds the configured address and serves connections until
// the listener is closed by Shutdown.
func (a *Acceptor) ListenAndServe() error {
	if err := a.Listen(); err != nil {
		return err
	}
	return a.Serve()
}

// Shutdown closes the listener and waits for in-flight connections to drain.
func (a *Acceptor) Shutdown() error {
	if a.listener != nil {
		a.listener.Close()
	}
	a.wg.Wait()
	return nil
}

func (a *Acceptor) serve(netConn net.Conn) {
	remoteAddr := netConn.RemoteAddr().String()
	a.recordAudit([32]byte{}, remoteAddr, auditlog.EventConnected)

	identity, err := a.handshake(netConn)
	if err != nil {
		a.logger.WithField("remote", remoteAddr).Infof("handshake failed: %v", err)
		a.recordAudit(identity, remoteAddr, auditlog.EventUnauthorised)
		netConn.Close()
		return
	}

	conn := newConn(netConn)
	conn.setIdentity(identity)
	conn.setState(StateAuthVerified)

	idx, ok := a.admit(conn)
	if !ok {
		a.logger.WithField("identity", conn.identityHex).Warn("rejected: all worker tables full")
		netConn.Close()
		return
	}

	a.recordAudit(identity, remoteAddr, auditlog.EventAuthorised)
	if a.presenceDir != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.presenceDir.Announce(ctx, identity, a.cfg.Presence.InstanceAddr)
		cancel()
	}

	conn.setState(StateActive)
	a.logger.WithField("identity", conn.identityHex).Info("connection active")

	defer func() {
		a.workers[idx].unregister(conn.identityHex)
		conn.Close()
		a.recordAudit(identity, remoteAddr, auditlog.EventDisconnected)
		if a.presenceDir != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.presenceDir.Withdraw(ctx, identity)
			cancel()
		}
	}()

	a.forwardLoop(conn)
}

// admit assigns conn to a worker round-robin, serialising the pick and the
// capacity check across all workers with a single process-wide mutex.
func (a *Acceptor) admit(conn *Conn) (int, bool) {
	a.admissionMu.Lock()
	defer a.admissionMu.Unlock()

	idx := int(a.nextWorker % uint64(len(a.workers)))
	a.nextWorker++

	if !a.workers[idx].tryRegister(conn.identityHex, conn, a.cfg.Limits.MaxClientsPerWorker) {
		return idx, false
	}
	return idx, true
}

func (a *Acceptor) forwardLoop(conn *Conn) {
	for {
		if a.idleTimeout > 0 {
			conn.net.SetReadDeadline(time.Now().Add(a.idleTimeout))
		}

		raw, pkt, err := protocol.ReadFrame(conn.net)
		if err != nil {
			var frameErr *protocol.FrameError
			if errors.As(err, &frameErr) && frameErr.Status != protocol.StatusClosedConnection {
				conn.writePacket(protocol.NewFakeSignaturePacket(frameErr.Status, frameErr.Error()))
			}
			return
		}
		a.logger.Debugf("%s from %s (%d bytes)", protocol.TypeName(pkt.Type), conn.identityHex, len(pkt.Data))

		switch pkt.Type {
		case protocol.TypeMessage, protocol.TypeUpdateMessage, protocol.TypeDeleteMessage:
			if !a.forwardPacket(conn, raw, pkt) {
				return
			}
		default:
			conn.writePacket(protocol.NewFakeSignaturePacket(protocol.StatusInvalidType, "unexpected packet type"))
		}
	}
}

// forwardPacket verifies and forwards a MESSAGE/UPDATE_MESSAGE/DELETE_MESSAGE
// packet. It returns false when the connection must be torn down.
func (a *Acceptor) forwardPacket(conn *Conn, raw []byte, pkt *protocol.Packet) bool {
	if len(pkt.Data) < protocol.IdentitySize*2 {
		conn.writePacket(protocol.NewFakeSignaturePacket(protocol.StatusInvalidLength, "payload too short"))
		return true
	}

	var sender, recipient [32]byte
	copy(sender[:], pkt.Data[0:protocol.IdentitySize])
	copy(recipient[:], pkt.Data[protocol.IdentitySize:protocol.IdentitySize*2])

	if sender != conn.identity {
		conn.writePacket(protocol.NewFakeSignaturePacket(protocol.StatusErrorIntegrity, "sender does not match connection identity"))
		return false
	}

	if err := cryptobox.Verify(sender[:], pkt.Data, pkt.Signature); err != nil {
		conn.writePacket(protocol.NewFakeSignaturePacket(protocol.StatusErrorIntegrity, "signature verification failed"))
		return false
	}

	recipientHex := hex.EncodeToString(recipient[:])
	recvConn, found := a.lookupRecipient(recipientHex)
	if !found {
		conn.writePacket(protocol.NewFakeSignaturePacket(protocol.StatusUnknownUser, a.unknownUserMessage(recipient)))
		return true
	}

	if err := recvConn.writeRaw(raw); err != nil {
		a.logger.WithField("recipient", recipientHex).Infof("forward failed: %v", err)
	}
	return true
}

// lookupRecipient searches every worker's table for identityHex. Each
// worker's own mutex guards the read, so this never races a worker's own
// registration or teardown.
func (a *Acceptor) lookupRecipient(identityHex string) (*Conn, bool) {
	for _, w := range a.workers {
		if c, ok := w.lookup(identityHex); ok {
			return c, true
		}
	}
	return nil, false
}

// unknownUserMessage builds the UNKNOWN_USER courtesy text for a recipient
// with no local connection. The wire protocol has no relay-to-relay leg, so
// this relay cannot forward a MESSAGE to another instance itself, but when
// a presence directory is attached it consults the cross-instance hint and
// names the instance the recipient was last seen on.
func (a *Acceptor) unknownUserMessage(recipient [32]byte) string {
	if a.presenceDir == nil {
		return "recipient not connected"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr, found, err := a.presenceDir.Lookup(ctx, recipient)
	if err != nil {
		a.logger.Infof("presence lookup failed: %v", err)
		return "recipient not connected"
	}
	if !found {
		return "recipient not connected"
	}
	if addr == a.cfg.Presence.InstanceAddr {
		// Announced here but missing from the local worker tables means the
		// hint is stale (e.g. a crash skipped Withdraw); say so plainly
		// rather than pointing the sender back at this same instance.
		return "recipient not connected"
	}
	return fmt.Sprintf("recipient not connected here; last seen at relay instance %s", addr)
}

func (a *Acceptor) recordAudit(identity [32]byte, remoteAddr string, event auditlog.EventType) {
	if a.auditLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.auditLog.Record(ctx, identity, remoteAddr, event); err != nil {
		a.logger.Infof("audit log write failed: %v", err)
	}
}
