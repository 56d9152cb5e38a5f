// Package integration exercises the relay and the wire protocol together,
// the way two real zen clients talking through a zmr relay would.
package integration

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/duskline/vesper/internal/cryptobox"
	"github.com/duskline/vesper/internal/logging"
	"github.com/duskline/vesper/internal/protocol"
	"github.com/duskline/vesper/internal/relay"
)

func startTestRelay(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	cfg := relay.DefaultConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Limits.WorkerCount = 2
	cfg.Limits.MaxClientsPerWorker = 4

	logger, err := logging.New("relay-e2e", logging.ERROR, "")
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}

	acceptor := relay.New(cfg, logger)
	if err := acceptor.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	go acceptor.Serve()

	return acceptor.Addr().String(), func() { acceptor.Shutdown() }
}

// authenticate performs the client side of the challenge-response handshake
// over an already-dialed connection.
func authenticate(t *testing.T, conn net.Conn, id *cryptobox.Identity) {
	t.Helper()

	challenge, err := protocol.Read(conn)
	if err != nil {
		t.Fatalf("read challenge: %v", err)
	}
	if challenge.Type != protocol.TypeAuth {
		t.Fatalf("challenge type = %v, want TypeAuth", challenge.Type)
	}

	sig := cryptobox.SignRaw(id.Private, challenge.Data)
	reply := &protocol.Packet{Type: protocol.TypeAuth, Data: id.Public, Signature: sig}
	if err := protocol.Write(conn, reply); err != nil {
		t.Fatalf("write auth reply: %v", err)
	}

	result, err := protocol.Read(conn)
	if err != nil {
		t.Fatalf("read auth result: %v", err)
	}
	if result.Type != protocol.StatusAuthorised {
		t.Fatalf("auth result = %s, want AUTHORISED", protocol.StatusName(result.Type))
	}
}

func buildMessagePacket(t *testing.T, sender *cryptobox.Identity, recipient [32]byte, tx [32]byte, plaintext string, created int64) *protocol.Packet {
	t.Helper()

	nonce, ciphertext, err := cryptobox.Seal(tx, []byte(plaintext))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	payload := &protocol.MessagePayload{
		Sender:     sender.Array(),
		Recipient:  recipient,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Created:    created,
	}
	data := protocol.EncodeMessagePayload(payload)

	sig, err := cryptobox.Sign(sender.Private, data)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	return &protocol.Packet{Type: protocol.TypeMessage, Data: data, Signature: sig}
}

// TestHappyPathDelivery covers spec.md §8 scenario S1: a complete MESSAGE
// transits the relay and the recipient can verify, decrypt, and recover the
// original plaintext and timestamp.
func TestHappyPathDelivery(t *testing.T) {
	addr, shutdown := startTestRelay(t)
	defer shutdown()

	alice, err := cryptobox.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}
	bob, err := cryptobox.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}

	aliceConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer aliceConn.Close()
	authenticate(t, aliceConn, alice)

	bobConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bobConn.Close()
	authenticate(t, bobConn, bob)

	aliceKeys, err := cryptobox.DeriveSessionKeys(alice, bob.Public)
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	bobKeys, err := cryptobox.DeriveSessionKeys(bob, alice.Public)
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}

	const created = int64(1700000000)
	pkt := buildMessagePacket(t, alice, bob.Array(), aliceKeys.Tx, "hello", created)
	if err := protocol.Write(aliceConn, pkt); err != nil {
		t.Fatalf("write message: %v", err)
	}

	bobConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	received, err := protocol.Read(bobConn)
	if err != nil {
		t.Fatalf("bob read: %v", err)
	}
	if received.Type != protocol.TypeMessage {
		t.Fatalf("received type = %s, want MESSAGE", protocol.TypeName(received.Type))
	}

	payload, err := protocol.DecodeMessagePayload(received.Data)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if err := cryptobox.Verify(payload.Sender[:], received.Data, received.Signature); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	plaintext, err := cryptobox.Open(bobKeys.Rx, payload.Nonce, payload.Ciphertext)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(plaintext) != "hello" {
		t.Errorf("plaintext = %q, want %q", plaintext, "hello")
	}
	if payload.Created != created {
		t.Errorf("Created = %d, want %d", payload.Created, created)
	}
	if payload.Sender != alice.Array() || payload.Recipient != bob.Array() {
		t.Error("sender/recipient identities do not match")
	}
}

// TestBadSignatureClosesSenderConnection covers spec.md §8 scenario S2.
func TestBadSignatureClosesSenderConnection(t *testing.T) {
	addr, shutdown := startTestRelay(t)
	defer shutdown()

	alice, _ := cryptobox.GenerateIdentity()
	bob, _ := cryptobox.GenerateIdentity()

	aliceConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer aliceConn.Close()
	authenticate(t, aliceConn, alice)

	bobConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bobConn.Close()
	authenticate(t, bobConn, bob)

	aliceKeys, _ := cryptobox.DeriveSessionKeys(alice, bob.Public)
	pkt := buildMessagePacket(t, alice, bob.Array(), aliceKeys.Tx, "hello", 1700000000)
	pkt.Signature[0] ^= 0xFF // flip a bit

	if err := protocol.Write(aliceConn, pkt); err != nil {
		t.Fatalf("write tampered message: %v", err)
	}

	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := protocol.Read(aliceConn)
	if err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Type != protocol.StatusErrorIntegrity {
		t.Fatalf("status = %s, want ERROR_INTEGRITY", protocol.StatusName(resp.Type))
	}

	bobConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := protocol.Read(bobConn); err == nil {
		t.Fatal("bob unexpectedly received a packet for a rejected message")
	}

	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := aliceConn.Read(make([]byte, 16)); err == nil {
		t.Fatal("expected alice's connection to be closed after ERROR(ErrorIntegrity)")
	}
}

// TestUnknownRecipientKeepsSenderConnected covers spec.md §8 scenario S3.
func TestUnknownRecipientKeepsSenderConnected(t *testing.T) {
	addr, shutdown := startTestRelay(t)
	defer shutdown()

	alice, _ := cryptobox.GenerateIdentity()
	ghost, _ := cryptobox.GenerateIdentity()

	aliceConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer aliceConn.Close()
	authenticate(t, aliceConn, alice)

	aliceKeys, _ := cryptobox.DeriveSessionKeys(alice, ghost.Public)
	pkt := buildMessagePacket(t, alice, ghost.Array(), aliceKeys.Tx, "hello", 1700000000)
	if err := protocol.Write(aliceConn, pkt); err != nil {
		t.Fatalf("write message: %v", err)
	}

	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := protocol.Read(aliceConn)
	if err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Type != protocol.StatusUnknownUser {
		t.Fatalf("status = %s, want UNKNOWN_USER", protocol.StatusName(resp.Type))
	}

	// Alice must still be connected: a second, valid round trip to herself
	// acting as recipient should succeed.
	aliceKeysToSelf, _ := cryptobox.DeriveSessionKeys(alice, alice.Public)
	pkt2 := buildMessagePacket(t, alice, alice.Array(), aliceKeysToSelf.Tx, "still here", 1700000001)
	if err := protocol.Write(aliceConn, pkt2); err != nil {
		t.Fatalf("write second message: %v", err)
	}
	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := protocol.Read(aliceConn); err != nil {
		t.Fatalf("connection appears closed after UNKNOWN_USER: %v", err)
	}
}

// TestOversizeFrameClosesConnection covers spec.md §8 scenario S4: a raw
// frame announcing a length over MAX_DATA_LENGTH gets a courtesy
// ERROR(TooLong) reply and then the connection is closed.
func TestOversizeFrameClosesConnection(t *testing.T) {
	addr, shutdown := startTestRelay(t)
	defer shutdown()

	alice, _ := cryptobox.GenerateIdentity()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	authenticate(t, conn, alice)

	header := make([]byte, protocol.HeaderSize)
	header[0] = protocol.TypeMessage
	binary.LittleEndian.PutUint32(header[1:5], 9000)
	if _, err := conn.Write(header); err != nil {
		t.Fatalf("write oversize header: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := protocol.Read(conn)
	if err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Type != protocol.StatusTooLong {
		t.Fatalf("status = %s, want TOO_LONG", protocol.StatusName(resp.Type))
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 16)); err == nil {
		t.Fatal("expected the connection to be closed after ERROR(TooLong)")
	}
}

// TestHandshakeFailureRejectsConnection covers spec.md §8 scenario S5: a
// bogus signature on the AUTH response gets UNAUTHORISED and a closed
// socket.
func TestHandshakeFailureRejectsConnection(t *testing.T) {
	addr, shutdown := startTestRelay(t)
	defer shutdown()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	challenge, err := protocol.Read(conn)
	if err != nil {
		t.Fatalf("read challenge: %v", err)
	}
	if challenge.Type != protocol.TypeAuth {
		t.Fatalf("challenge type = %v, want TypeAuth", challenge.Type)
	}

	var randomSig [64]byte
	rand.Read(randomSig[:])
	reply := &protocol.Packet{Type: protocol.TypeAuth, Data: pub, Signature: randomSig}
	if err := protocol.Write(conn, reply); err != nil {
		t.Fatalf("write bogus auth reply: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	result, err := protocol.Read(conn)
	if err != nil {
		t.Fatalf("read auth result: %v", err)
	}
	if result.Type != protocol.StatusUnauthorised {
		t.Fatalf("result = %s, want UNAUTHORISED", protocol.StatusName(result.Type))
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 16)); err == nil {
		t.Fatal("expected the connection to be closed after UNAUTHORISED")
	}
}
