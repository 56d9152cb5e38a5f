// Package client implements the chat client daemon: the handshake with the
// relay, the send/receive paths, the per-peer session-key cache, and the
// local SQLite-backed message store.
package client

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is the client's default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "zsm", "zen", "zen.conf")
}

// DefaultDataDir is the client's default persisted-state directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "zsm", "zen")
}

// Config holds the client's flat key=value configuration: its long-term
// identity and the relay to connect to.
type Config struct {
	PublicKey     [32]byte
	PrivateKey    [64]byte
	ServerAddress string
}

// LoadConfig parses a plain "key=value" per-line config file. Unknown keys
// log a warning (to stderr, since the logger isn't constructed yet at this
// point in startup) and are otherwise ignored.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("client: open config: %w", err)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "public_key", "private_key", "server_address":
			values[key] = value
		default:
			fmt.Fprintf(os.Stderr, "zen: warning: unknown config key %q ignored\n", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("client: read config: %w", err)
	}

	cfg := &Config{ServerAddress: values["server_address"]}

	pubHex, ok := values["public_key"]
	if !ok {
		return nil, fmt.Errorf("client: config missing public_key")
	}
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != 32 {
		return nil, fmt.Errorf("client: public_key must be 64 hex characters")
	}
	copy(cfg.PublicKey[:], pub)

	privHex, ok := values["private_key"]
	if !ok {
		return nil, fmt.Errorf("client: config missing private_key")
	}
	priv, err := hex.DecodeString(privHex)
	if err != nil || len(priv) != 64 {
		return nil, fmt.Errorf("client: private_key must be 128 hex characters")
	}
	copy(cfg.PrivateKey[:], priv)

	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("client: config missing server_address")
	}

	return cfg, nil
}

// Save writes cfg back out in the same flat key=value format that
// LoadConfig reads.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("client: create config directory: %w", err)
		}
	}

	body := fmt.Sprintf("public_key=%s\nprivate_key=%s\nserver_address=%s\n",
		hex.EncodeToString(cfg.PublicKey[:]),
		hex.EncodeToString(cfg.PrivateKey[:]),
		cfg.ServerAddress,
	)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		return fmt.Errorf("client: write config: %w", err)
	}
	return nil
}
