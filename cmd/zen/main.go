// Command zen is the end-to-end encrypted chat client: it authenticates to
// a zmr relay, encrypts outgoing messages, verifies and decrypts incoming
// ones, and persists conversation state locally.
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/duskline/vesper/internal/client"
	"github.com/duskline/vesper/internal/cryptobox"
	"github.com/duskline/vesper/internal/logging"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "zen",
		Short: "zen is the end-to-end encrypted chat client daemon",
		RunE:  runInteractive,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", client.DefaultConfigPath(), "path to client config file")

	root.AddCommand(createKeyCmd())
	root.AddCommand(createBackupCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-key",
		Short: "generate a fresh Ed25519 keypair and print it to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cryptobox.GenerateIdentity()
			if err != nil {
				return fmt.Errorf("generate identity: %w", err)
			}
			fmt.Printf("public_key=%s\n", hex.EncodeToString(id.Public))
			fmt.Printf("private_key=%s\n", hex.EncodeToString(id.Private))
			return nil
		},
	}
}

func createBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-backup <name>",
		Short: "copy the local database to <name>.db",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := filepath.Join(client.DefaultDataDir(), "zen.db")
			store, err := client.OpenStore(dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			dst := args[0] + ".db"
			if err := store.Backup(dst); err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			fmt.Printf("backed up %s to %s\n", dbPath, dst)
			return nil
		},
	}
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := client.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	id, err := cryptobox.IdentityFromPrivateKey(ed25519.PrivateKey(cfg.PrivateKey[:]))
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	logPath := filepath.Join(client.DefaultDataDir(), "zen.log")
	logger, err := logging.New("zen", logging.INFO, logPath)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	dbPath := filepath.Join(client.DefaultDataDir(), "zen.db")
	store, err := client.OpenStore(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	keys := client.NewMemoryKeyDirectory()
	nicknames, err := store.Nicknames()
	if err != nil {
		return fmt.Errorf("load nicknames: %w", err)
	}
	for peerHex, nickname := range nicknames {
		pub, err := hex.DecodeString(peerHex)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			continue
		}
		keys.Remember(nickname, ed25519.PublicKey(pub))
	}

	notifier := client.NewExecNotifier(os.Getenv("ZEN_NOTIFY_COMMAND"))
	ui := client.NewLineUI(os.Stdin, os.Stdout)

	logger.Infof("connecting to %s", cfg.ServerAddress)
	session, err := client.Dial(cfg.ServerAddress, id, store, keys, notifier, ui, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer session.Close()

	logger.Info("authenticated")
	session.Start()

	// The receive task calls UI.Shutdown and closes Done when the relay
	// closes the connection; per spec.md §4.4 that ends the process.
	go func() {
		<-session.Done()
		os.Exit(0)
	}()

	for {
		recipient, message, err := ui.ReadLine()
		if err != nil {
			return nil
		}

		switch recipient {
		case "/nick":
			peer, nickname, ok := strings.Cut(message, " ")
			if !ok {
				ui.StatusLine("usage: /nick <identity-hex> <nickname>")
				continue
			}
			if err := session.SetNickname(peer, nickname); err != nil {
				ui.StatusLine(fmt.Sprintf("nick failed: %v", err))
			}
			continue
		case "/delete":
			peer, tsRaw, ok := strings.Cut(message, " ")
			if !ok {
				ui.StatusLine("usage: /delete <identity-hex> <timestamp>")
				continue
			}
			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				ui.StatusLine(fmt.Sprintf("delete failed: invalid timestamp %q", tsRaw))
				continue
			}
			if err := session.Delete(peer, ts); err != nil {
				ui.StatusLine(fmt.Sprintf("delete failed: %v", err))
			}
			continue
		}

		if err := session.Send(recipient, message); err != nil {
			ui.StatusLine(fmt.Sprintf("send failed: %v", err))
		}
	}
}
