package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/nwcctl/internal/auth"
	"github.com/danmuck/nwcctl/internal/bridge"
	"github.com/danmuck/nwcctl/internal/observability"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/pkg/nwc"
	"github.com/rs/zerolog/log"
)

// EnvAuthToken overrides auth_token so the secret can stay out of the config file.
const EnvAuthToken = "NWCD_AUTH_TOKEN"

// reconnectInterval is how often an idle daemon checks the relay link.
const reconnectInterval = 5 * time.Second

func main() {
	observability.InitLogger("nwcd")
	configPath := flag.String("config", "cmd/nwcd/config.toml", "toml config path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "nwcd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadDaemonConfig(configPath)
	if err != nil {
		return err
	}
	if token := strings.TrimSpace(os.Getenv(EnvAuthToken)); token != "" {
		cfg.Bridge.Auth = auth.StaticToken{Token: token}
	}
	if cfg.Bridge.Auth == nil {
		log.Warn().Msg("nwcd running without auth_token; /v1 is open to any client that can reach it")
	}
	log.Info().Str("path", configPath).Msg("loaded nwcd config")

	client, err := nwc.NewClient(cfg.Client)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()
	log.Info().Str("relay", client.RelayURL()).Str("wallet", client.WalletPubkey()).Msg("relay connected")
	go client.KeepConnected(ctx, reconnectInterval)

	if cfg.LogNotifications {
		stopNotifications, err := client.SubscribeNotifications(ctx, func(n protocol.Notification) {
			log.Info().
				Str("type", string(n.NotificationType)).
				Str("payment_hash", n.Notification.PaymentHash).
				Int64("amount", n.Notification.Amount).
				Msg("wallet notification")
		})
		if err != nil {
			log.Warn().Err(err).Msg("notifications unavailable")
		} else {
			defer stopNotifications()
		}
	}

	server := bridge.New(cfg.Bridge, client)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info().Msg("nwcd stopped")
	return nil
}
