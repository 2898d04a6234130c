package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/raccoon-warez/cipherwave-relay/config"
	"github.com/raccoon-warez/cipherwave-relay/internal/handler"
	"github.com/raccoon-warez/cipherwave-relay/internal/healthcheck"
	"github.com/raccoon-warez/cipherwave-relay/internal/httpserver"
	"github.com/raccoon-warez/cipherwave-relay/internal/loadbalancer"
	"github.com/raccoon-warez/cipherwave-relay/internal/metrics"
	"github.com/raccoon-warez/cipherwave-relay/internal/strategy"
	"github.com/raccoon-warez/cipherwave-relay/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment, "balancer")

	// One context drives every periodic task; cancelling it stops the
	// probe cycles, the collector and the server together.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	balancer := loadbalancer.New(strategy.FromName(cfg.Strategy.Type), log)
	if err := registerBackends(balancer, cfg); err != nil {
		log.Error("Failed to register backends", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	monitor := healthcheck.NewMonitor(
		balancer,
		collector,
		cfg.HealthInterval(),
		cfg.HealthTimeout(),
		cfg.HealthCheck.Path,
		log,
	)
	monitor.Start(ctx)

	proxyHandler := handler.NewProxyHandler(log, balancer, collector)
	adminHandler := handler.NewAdminHandler(log, balancer)

	mux := setupRouter(proxyHandler, adminHandler, collector, cfg.Strategy.Type)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Balancer starting",
		slog.String("address", cfg.Server.Address),
		slog.String("strategy", cfg.Strategy.Type),
		slog.Int("backends", len(cfg.Backends)))

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
			log.Error("Error starting balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func registerBackends(balancer *loadbalancer.Balancer, cfg *config.Config) error {
	for _, bc := range cfg.Backends {
		u, err := url.Parse(bc.URL)
		if err != nil {
			return err
		}

		if _, err := balancer.AddBackend(bc.ID, u, bc.Weight); err != nil {
			return err
		}
	}

	return nil
}
