// Package auditlog is an optional Postgres-backed record of connection
// events on a relay instance: who connected, from where, and when they
// authorised or dropped. It never records message content or keys.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// EventType enumerates the connection-lifecycle events that get recorded.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventAuthorised   EventType = "authorised"
	EventUnauthorised EventType = "unauthorised"
	EventDisconnected EventType = "disconnected"
)

// Log writes connection events to a Postgres table.
type Log struct {
	db *sql.DB
}

// Config holds the Postgres connection parameters for a Log.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (c Config) dsn() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

// Open connects to Postgres and ensures the audit table exists.
func Open(ctx context.Context, cfg Config) (*Log, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("auditlog: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: ping: %w", err)
	}

	l := &Log{db: db}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS connection_events (
	id BIGSERIAL PRIMARY KEY,
	identity TEXT NOT NULL,
	remote_addr TEXT NOT NULL,
	event TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_connection_events_identity ON connection_events (identity);
`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("auditlog: init schema: %w", err)
	}
	return nil
}

// Record appends one connection event. identity may be the zero value
// before a handshake completes (e.g. EventConnected).
func (l *Log) Record(ctx context.Context, identity [32]byte, remoteAddr string, event EventType) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO connection_events (identity, remote_addr, event, occurred_at) VALUES ($1, $2, $3, $4)`,
		hex.EncodeToString(identity[:]), remoteAddr, string(event), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("auditlog: record: %w", err)
	}
	return nil
}

// RecentForIdentity returns the most recent events for an identity, newest
// first, capped at limit.
func (l *Log) RecentForIdentity(ctx context.Context, identity [32]byte, limit int) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT remote_addr, event, occurred_at FROM connection_events
		 WHERE identity = $1 ORDER BY occurred_at DESC LIMIT $2`,
		hex.EncodeToString(identity[:]), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.RemoteAddr, &e.Type, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("auditlog: scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Event is one recorded connection-lifecycle event.
type Event struct {
	RemoteAddr string
	Type       EventType
	OccurredAt time.Time
}

// Close releases the database connection.
func (l *Log) Close() error {
	return l.db.Close()
}
