package client

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/duskline/vesper/internal/cryptobox"
	"github.com/duskline/vesper/internal/logging"
	"github.com/duskline/vesper/internal/protocol"
)

// DefaultPort is the relay's fixed listening port (spec.md §4.4, §6).
// server_address in the client config is a bare hostname or IPv4 literal
// with no port, so Dial always appends this before dialing.
const DefaultPort = "20247"

// Session maintains one authenticated connection to the relay on behalf of
// a UI: it encrypts/decrypts on the UI's behalf and feeds the persistence
// and notification sinks. Matches the teacher's connection+handshake+
// dedicated-receive-goroutine shape (client/daemon/session.go and
// connection.go), generalized to per-peer encrypted chat messages.
type Session struct {
	conn   net.Conn
	id     *cryptobox.Identity
	store  *Store
	keys   KeyDirectory
	notify Notifier
	ui     UI
	logger *logging.Logger

	writeMu sync.Mutex
	done    chan struct{}
}

// Dial connects to the relay at host (a bare hostname or IPv4 literal, per
// spec.md §6 — DefaultPort is appended) and completes the authentication
// handshake, returning a Session ready to Start.
func Dial(host string, id *cryptobox.Identity, store *Store, keys KeyDirectory, notify Notifier, ui UI, logger *logging.Logger) (*Session, error) {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, DefaultPort))
	if err != nil {
		return nil, fmt.Errorf("client: dial relay: %w", err)
	}

	if err := handshake(conn, id); err != nil {
		conn.Close()
		return nil, err
	}

	return &Session{
		conn:   conn,
		id:     id,
		store:  store,
		keys:   keys,
		notify: notify,
		ui:     ui,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Start spawns the dedicated receive task and returns immediately; the
// caller (the UI's event loop) drives Send synchronously afterward.
func (s *Session) Start() {
	go s.receiveLoop()
}

// Done is closed once the receive task exits, e.g. because the relay
// closed the connection.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close shuts down the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Send encrypts plaintext for recipientIdentifier (resolved through the key
// directory) and writes it to the relay. The outgoing message is persisted
// locally regardless of whether the write later fails, so the user sees it
// immediately and restart recovers history.
func (s *Session) Send(recipientIdentifier, plaintext string) error {
	recipientPub, err := s.keys.Resolve(recipientIdentifier)
	if err != nil {
		return fmt.Errorf("client: resolve recipient: %w", err)
	}
	var recipient [32]byte
	copy(recipient[:], recipientPub)

	sendKeys, err := s.sessionKeysFor(recipientPub)
	if err != nil {
		return fmt.Errorf("client: derive send key: %w", err)
	}

	nonce, ciphertext, err := cryptobox.Seal(sendKeys.Tx, []byte(plaintext))
	if err != nil {
		return fmt.Errorf("client: encrypt: %w", err)
	}

	created := time.Now().Unix()
	payload := &protocol.MessagePayload{
		Sender:     s.id.Array(),
		Recipient:  recipient,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Created:    created,
	}
	data := protocol.EncodeMessagePayload(payload)

	sig, err := cryptobox.Sign(s.id.Private, data)
	if err != nil {
		return fmt.Errorf("client: sign: %w", err)
	}

	pkt := &protocol.Packet{Type: protocol.TypeMessage, Data: data, Signature: sig}

	if err := s.store.SaveMessage(s.id.Array(), recipient, plaintext, created); err != nil {
		s.logger.Errorf("persist outgoing message: %v", err)
	}

	s.writeMu.Lock()
	err = protocol.Write(s.conn, pkt)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("client: write message: %w", err)
	}

	return nil
}

// Delete sends a DELETE_MESSAGE packet retracting the message this identity
// sent to recipientIdentifier at the given creation timestamp (there is no
// independent message ID on the wire, so sender/recipient/timestamp is the
// retraction's key), and removes the local copy immediately.
func (s *Session) Delete(recipientIdentifier string, created int64) error {
	recipientPub, err := s.keys.Resolve(recipientIdentifier)
	if err != nil {
		return fmt.Errorf("client: resolve recipient: %w", err)
	}
	var recipient [32]byte
	copy(recipient[:], recipientPub)

	payload := &protocol.DeleteMessagePayload{
		Sender:    s.id.Array(),
		Recipient: recipient,
		Created:   created,
	}
	data := protocol.EncodeDeleteMessagePayload(payload)

	sig, err := cryptobox.Sign(s.id.Private, data)
	if err != nil {
		return fmt.Errorf("client: sign: %w", err)
	}

	pkt := &protocol.Packet{Type: protocol.TypeDeleteMessage, Data: data, Signature: sig}

	if err := s.store.DeleteMessage(s.id.Array(), recipient, created); err != nil {
		s.logger.Errorf("delete local message: %v", err)
	}

	s.writeMu.Lock()
	err = protocol.Write(s.conn, pkt)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("client: write delete: %w", err)
	}

	return nil
}

// SetNickname records a human-friendly label for peerIdentifier (typically
// its raw hex identity, the only form the key directory resolves until a
// nickname exists) in both the local store and the in-process key
// directory, so later sends and deletes can address the peer by name.
func (s *Session) SetNickname(peerIdentifier, nickname string) error {
	pub, err := s.keys.Resolve(peerIdentifier)
	if err != nil {
		return fmt.Errorf("client: resolve peer: %w", err)
	}
	var peer [32]byte
	copy(peer[:], pub)

	if err := s.store.SetNickname(peer, nickname); err != nil {
		return fmt.Errorf("client: save nickname: %w", err)
	}
	s.keys.Remember(nickname, pub)
	return nil
}

// receiveLoop blocks on codec decode until the connection closes, handling
// MESSAGE, DELETE_MESSAGE, and ERROR packets as they arrive.
func (s *Session) receiveLoop() {
	defer close(s.done)
	defer s.ui.Shutdown()

	for {
		pkt, err := protocol.Read(s.conn)
		if err != nil {
			s.logger.Infof("receive loop ending: %v", err)
			return
		}

		switch {
		case pkt.Type == protocol.TypeMessage:
			s.handleIncoming(pkt)
		case pkt.Type == protocol.TypeDeleteMessage:
			s.handleDelete(pkt)
		case protocol.StatusName(pkt.Type) != "":
			s.ui.StatusLine(fmt.Sprintf("relay: %s %s", protocol.StatusName(pkt.Type), string(pkt.Data)))
		default:
			s.logger.Warnf("unexpected packet type %s", protocol.TypeName(pkt.Type))
		}
	}
}

func (s *Session) handleIncoming(pkt *protocol.Packet) {
	payload, err := protocol.DecodeMessagePayload(pkt.Data)
	if err != nil {
		s.logger.Errorf("decode message payload: %v", err)
		return
	}

	if err := cryptobox.Verify(payload.Sender[:], pkt.Data, pkt.Signature); err != nil {
		s.logger.Errorf("signature verification failed from %s: %v", hex.EncodeToString(payload.Sender[:]), err)
		return
	}

	recvKeys, err := s.sessionKeysFor(ed25519.PublicKey(payload.Sender[:]))
	if err != nil {
		s.logger.Errorf("derive receive key: %v", err)
		return
	}

	plaintext, err := cryptobox.Open(recvKeys.Rx, payload.Nonce, payload.Ciphertext)
	if err != nil {
		s.logger.Errorf("decrypt failed from %s: %v", hex.EncodeToString(payload.Sender[:]), err)
		return
	}

	if err := s.store.SaveMessage(payload.Sender, payload.Recipient, string(plaintext), payload.Created); err != nil {
		s.logger.Errorf("persist incoming message: %v", err)
	}

	if err := s.notify.Notify(hex.EncodeToString(payload.Sender[:]), string(plaintext)); err != nil {
		s.logger.Warnf("notify: %v", err)
	}

	if selected, ok := s.ui.Selected(); !ok || ed25519.PublicKey(payload.Sender[:]).Equal(selected) {
		s.ui.Display(payload.Sender[:], string(plaintext))
	}
}

func (s *Session) handleDelete(pkt *protocol.Packet) {
	payload, err := protocol.DecodeDeleteMessagePayload(pkt.Data)
	if err != nil {
		s.logger.Errorf("decode delete payload: %v", err)
		return
	}

	if err := cryptobox.Verify(payload.Sender[:], pkt.Data, pkt.Signature); err != nil {
		s.logger.Errorf("delete signature verification failed from %s: %v", hex.EncodeToString(payload.Sender[:]), err)
		return
	}

	if err := s.store.DeleteMessage(payload.Sender, payload.Recipient, payload.Created); err != nil {
		s.logger.Errorf("delete incoming message: %v", err)
		return
	}

	s.ui.StatusLine(fmt.Sprintf("%s retracted a message", hex.EncodeToString(payload.Sender[:])))
}

// sessionKeysFor returns the cached send/receive key pair for peer,
// deriving and caching it on first contact.
func (s *Session) sessionKeysFor(peer ed25519.PublicKey) (*cryptobox.SessionKeys, error) {
	var peerArr [32]byte
	copy(peerArr[:], peer)

	if cached, ok, err := s.store.SessionKeys(peerArr); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}

	derived, err := cryptobox.DeriveSessionKeys(s.id, peer)
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreSessionKeys(peerArr, derived); err != nil {
		return nil, fmt.Errorf("cache session keys: %w", err)
	}
	return derived, nil
}
