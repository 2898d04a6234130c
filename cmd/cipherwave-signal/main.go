package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/raccoon-warez/cipherwave-relay/config"
	"github.com/raccoon-warez/cipherwave-relay/internal/httpserver"
	"github.com/raccoon-warez/cipherwave-relay/internal/signaling"
	"github.com/raccoon-warez/cipherwave-relay/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment, "signal")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := signaling.NewHub(cfg.Signaling.MaxRoomIDLength, cfg.Signaling.RoomCapacity, log)

	tracker := signaling.NewTracker(cfg.LivenessInterval(), log)
	tracker.Start(ctx)

	node := signaling.NewServer(hub, tracker, cfg.Signaling.MaxMessageBytes, log)

	mux := http.NewServeMux()
	node.Register(mux)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Signal node starting",
		slog.String("address", cfg.Server.Address),
		slog.Int("max_message_bytes", cfg.Signaling.MaxMessageBytes))

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting signal node", slog.Any("err", err))
			os.Exit(1)
		}
	}
}
