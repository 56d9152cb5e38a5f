// Command zmr runs the chat relay: it authenticates inbound connections by
// Ed25519 challenge-response and forwards MESSAGE/UPDATE_MESSAGE/
// DELETE_MESSAGE packets between currently-connected identities.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duskline/vesper/internal/auditlog"
	"github.com/duskline/vesper/internal/logging"
	"github.com/duskline/vesper/internal/presence"
	"github.com/duskline/vesper/internal/relay"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "zmr",
		Short: "zmr is the relay server for zen end-to-end encrypted chat",
		RunE:  runRelay,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to relay config file (defaults built in if omitted)")
	root.Flags().BoolVarP(&verbose, "verbose", "d", false, "verbose packet tracing, written to the relay log (stdout unless logging.output_file is set)")

	root.AddCommand(auditRecentCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// auditRecentCmd exposes auditlog.Log.RecentForIdentity for operators
// diagnosing a single identity's recent connection history.
func auditRecentCmd() *cobra.Command {
	var (
		auditCfgPath string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "audit-recent <identity-hex>",
		Short: "print the most recent connection events recorded for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := relay.DefaultConfig()
			if auditCfgPath != "" {
				loaded, err := relay.LoadConfig(auditCfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			if !cfg.Audit.Enabled {
				return fmt.Errorf("audit log is not enabled in this config")
			}

			identityBytes, err := hex.DecodeString(args[0])
			if err != nil || len(identityBytes) != 32 {
				return fmt.Errorf("identity must be 64 hex characters")
			}
			var identity [32]byte
			copy(identity[:], identityBytes)

			ctx := context.Background()
			auditLog, err := auditlog.Open(ctx, auditlog.Config{
				Host:     cfg.Audit.Host,
				Port:     cfg.Audit.Port,
				User:     cfg.Audit.User,
				Password: cfg.Audit.Password,
				Database: cfg.Audit.Database,
			})
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}
			defer auditLog.Close()

			events, err := auditLog.RecentForIdentity(ctx, identity, limit)
			if err != nil {
				return fmt.Errorf("query audit log: %w", err)
			}
			for _, e := range events {
				fmt.Printf("%s\t%s\t%s\n", e.OccurredAt.Format(time.RFC3339), e.Type, e.RemoteAddr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&auditCfgPath, "config", "c", "", "path to relay config file (defaults built in if omitted)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of events to print")
	return cmd
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg := relay.DefaultConfig()
	if configPath != "" {
		loaded, err := relay.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	level := logging.INFO
	if cfg.Logging.Level == "debug" {
		level = logging.DEBUG
	}
	logger, err := logging.New("zmr", level, cfg.Logging.OutputFile)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	acceptor := relay.New(cfg, logger)

	if cfg.Presence.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		dir, err := presence.New(ctx, presence.Config{
			Addr: cfg.Presence.RedisAddr,
			DB:   cfg.Presence.RedisDB,
		})
		cancel()
		if err != nil {
			logger.Warnf("presence directory disabled: %v", err)
		} else {
			defer dir.Close()
			acceptor.AttachPresence(dir)
		}
	}

	if cfg.Audit.Enabled {
		ctx := context.Background()
		auditLog, err := auditlog.Open(ctx, auditlog.Config{
			Host:     cfg.Audit.Host,
			Port:     cfg.Audit.Port,
			User:     cfg.Audit.User,
			Password: cfg.Audit.Password,
			Database: cfg.Audit.Database,
		})
		if err != nil {
			logger.Warnf("audit log disabled: %v", err)
		} else {
			defer auditLog.Close()
			acceptor.AttachAudit(auditLog)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- acceptor.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay stopped: %w", err)
		}
	case <-sigCh:
		logger.Info("shutting down")
		acceptor.Shutdown()
	}

	return nil
}
