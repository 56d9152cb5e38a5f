package client

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duskline/vesper/internal/cryptobox"
)

// Store is the client's local persistence layer: the per-peer session-key
// cache and the message history, both backed by one SQLite database. A
// single mutex around the *sql.DB handle serialises the send path and the
// receive task per spec.md §5.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Message is one persisted chat message, retrieved in insertion order.
type Message struct {
	ID        int64
	Author    [32]byte
	Recipient [32]byte
	Content   string
	Timestamp int64
}

// OpenStore opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("client: open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("client: ping store: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS Users (
	username    TEXT PRIMARY KEY,
	nickname    TEXT,
	receive_key BLOB,
	send_key    BLOB
);
CREATE TABLE IF NOT EXISTS Messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	author    TEXT NOT NULL,
	recipient TEXT NOT NULL,
	content   TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	FOREIGN KEY (author) REFERENCES Users(username),
	FOREIGN KEY (recipient) REFERENCES Users(username)
);
`
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("client: init schema: %w", err)
	}
	return nil
}

func identityHex(id [32]byte) string { return hex.EncodeToString(id[:]) }

// ensureUser inserts a bare row for username if one doesn't already exist,
// so Messages' foreign keys resolve even before a session key is cached.
func (s *Store) ensureUser(username string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO Users (username) VALUES (?)`, username)
	return err
}

// SessionKeys retrieves a cached (send, receive) key pair for peer. The
// second return value is false on a clean cache miss.
func (s *Store) SessionKeys(peer [32]byte) (*cryptobox.SessionKeys, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rx, tx []byte
	row := s.db.QueryRow(`SELECT receive_key, send_key FROM Users WHERE username = ?`, identityHex(peer))
	if err := row.Scan(&rx, &tx); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("client: query session keys: %w", err)
	}
	if rx == nil || tx == nil {
		return nil, false, nil
	}

	keys := &cryptobox.SessionKeys{}
	copy(keys.Rx[:], rx)
	copy(keys.Tx[:], tx)
	return keys, true, nil
}

// StoreSessionKeys persists a freshly derived key pair for peer, overwriting
// any prior cache entry. Session keys are cached indefinitely (no forward
// secrecy across sessions, per spec.md's Non-goals).
func (s *Store) StoreSessionKeys(peer [32]byte, keys *cryptobox.SessionKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := identityHex(peer)
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO Users (username) VALUES (?)`, username); err != nil {
		return fmt.Errorf("client: ensure user: %w", err)
	}
	_, err := s.db.Exec(
		`UPDATE Users SET receive_key = ?, send_key = ? WHERE username = ?`,
		keys.Rx[:], keys.Tx[:], username,
	)
	if err != nil {
		return fmt.Errorf("client: store session keys: %w", err)
	}
	return nil
}

// SetNickname records a human-friendly label for a peer identity.
func (s *Store) SetNickname(peer [32]byte, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := identityHex(peer)
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO Users (username) VALUES (?)`, username); err != nil {
		return fmt.Errorf("client: ensure user: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE Users SET nickname = ? WHERE username = ?`, nickname, username); err != nil {
		return fmt.Errorf("client: set nickname: %w", err)
	}
	return nil
}

// Nicknames returns every peer identity with a recorded nickname, keyed by
// hex identity, so callers can seed an in-process KeyDirectory at startup.
func (s *Store) Nicknames() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT username, nickname FROM Users WHERE nickname IS NOT NULL AND nickname != ''`)
	if err != nil {
		return nil, fmt.Errorf("client: query nicknames: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var username, nickname string
		if err := rows.Scan(&username, &nickname); err != nil {
			return nil, fmt.Errorf("client: scan nickname: %w", err)
		}
		out[username] = nickname
	}
	return out, rows.Err()
}

// DeleteMessage removes the message author sent to recipient at timestamp.
// Sender/recipient/timestamp is the wire protocol's only handle on a
// message, so a retraction matches on that triple rather than a local ID.
func (s *Store) DeleteMessage(author, recipient [32]byte, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`DELETE FROM Messages WHERE author = ? AND recipient = ? AND timestamp = ?`,
		identityHex(author), identityHex(recipient), timestamp,
	)
	if err != nil {
		return fmt.Errorf("client: delete message: %w", err)
	}
	return nil
}

// SaveMessage persists one message in insertion order.
func (s *Store) SaveMessage(author, recipient [32]byte, content string, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	authorHex, recipientHex := identityHex(author), identityHex(recipient)
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO Users (username) VALUES (?)`, authorHex); err != nil {
		return fmt.Errorf("client: ensure author: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO Users (username) VALUES (?)`, recipientHex); err != nil {
		return fmt.Errorf("client: ensure recipient: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT INTO Messages (author, recipient, content, timestamp) VALUES (?, ?, ?, ?)`,
		authorHex, recipientHex, content, timestamp,
	)
	if err != nil {
		return fmt.Errorf("client: save message: %w", err)
	}
	return nil
}

// Conversation returns every message exchanged between self and peer
// (in either direction), oldest first.
func (s *Store) Conversation(self, peer [32]byte) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selfHex, peerHex := identityHex(self), identityHex(peer)
	rows, err := s.db.Query(
		`SELECT id, author, recipient, content, timestamp FROM Messages
		 WHERE (author = ? AND recipient = ?) OR (author = ? AND recipient = ?)
		 ORDER BY id ASC`,
		selfHex, peerHex, peerHex, selfHex,
	)
	if err != nil {
		return nil, fmt.Errorf("client: query conversation: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var authorHex, recipientHex string
		if err := rows.Scan(&m.ID, &authorHex, &recipientHex, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("client: scan message: %w", err)
		}
		decodeIdentity(authorHex, &m.Author)
		decodeIdentity(recipientHex, &m.Recipient)
		out = append(out, m)
	}
	return out, rows.Err()
}

func decodeIdentity(s string, out *[32]byte) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return
	}
	copy(out[:], b)
}

// Backup copies the live database to dstPath with a single VACUUM INTO
// statement against the open handle, so `zen create-backup` doesn't need
// to pause the daemon.
func (s *Store) Backup(dstPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", escapeSQLiteLiteral(dstPath))); err != nil {
		return fmt.Errorf("client: backup: %w", err)
	}
	return nil
}

func escapeSQLiteLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
