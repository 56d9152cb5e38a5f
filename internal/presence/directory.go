// Package presence is an optional distributed directory that lets more than
// one relay process share live identity routing hints: which relay instance
// an identity was last announced on. The relay does not forward a MESSAGE
// to another instance; it only names that instance in its UNKNOWN_USER
// reply. It never carries ciphertext or session keys.
package presence

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Directory publishes and resolves "this identity is currently connected to
// this relay instance" hints with a short TTL.
type Directory struct {
	client *redis.Client
	ttl    time.Duration
}

// Config configures the Redis connection backing a Directory.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New connects to Redis and returns a Directory. Callers should treat a
// non-nil error as "run without multi-instance presence" rather than fatal.
func New(ctx context.Context, cfg Config) (*Directory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}

	return &Directory{client: client, ttl: ttl}, nil
}

func key(identity [32]byte) string {
	return "presence:" + hex.EncodeToString(identity[:])
}

// Announce records that identity is currently reachable at this relay
// instance's address, refreshing the TTL.
func (d *Directory) Announce(ctx context.Context, identity [32]byte, instanceAddr string) error {
	return d.client.Set(ctx, key(identity), instanceAddr, d.ttl).Err()
}

// Withdraw removes a presence hint, typically on disconnect.
func (d *Directory) Withdraw(ctx context.Context, identity [32]byte) error {
	return d.client.Del(ctx, key(identity)).Err()
}

// Lookup resolves which relay instance an identity is currently announced
// on. Returns ("", false, nil) on a clean miss.
func (d *Directory) Lookup(ctx context.Context, identity [32]byte) (string, bool, error) {
	addr, err := d.client.Get(ctx, key(identity)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("presence: lookup: %w", err)
	}
	return addr, true, nil
}

// Close releases the Redis connection.
func (d *Directory) Close() error {
	return d.client.Close()
}
