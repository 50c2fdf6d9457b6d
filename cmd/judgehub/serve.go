package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/terra-clan/judgehub/internal/api"
	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/config"
	"github.com/terra-clan/judgehub/internal/health"
	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/lifecycle"
	"github.com/terra-clan/judgehub/internal/metrics"
	"github.com/terra-clan/judgehub/internal/notify"
	"github.com/terra-clan/judgehub/internal/scoring"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Action: func(c *cli.Context) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	slog.Info("starting judgehub",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
		"notifier", cfg.Notifier.Backend,
	)

	policy, err := scoring.ParsePolicy(cfg.Scoring.Aggregation)
	if err != nil {
		return err
	}

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	repo, err := openRepository(initCtx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	checks := health.NewRegistry(2 * time.Second)
	checks.Register("storage", health.CheckerFunc(repo.Ping))

	broker := openBroker(initCtx, cfg, checks)
	defer broker.Close()

	registry, m := metrics.NewRegistry()
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	svc := judging.NewService(repo, broker, judging.Options{
		Policy:        policy,
		NotifyTimeout: cfg.Notifier.Timeout,
		Tokens:        tokens,
		Metrics:       m,
	})

	if cfg.Seed.Dir != "" {
		res, err := loadSeed(initCtx, svc, cfg.Seed.Dir)
		if err != nil {
			slog.Warn("failed to load seed fixtures", "dir", cfg.Seed.Dir, "error", err)
		} else {
			slog.Info("seed fixtures loaded", "users", res.Users, "competitions", res.Competitions)
		}
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Lifecycle.Enabled {
		lifecycle.NewWorker(svc, cfg.Lifecycle.Interval).Start(ctx)
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Service:    svc,
		Subscriber: broker,
		Tokens:     tokens,
		Health:     checks,
		Metrics:    m,
		Gatherer:   registry,
		LoginRate:  cfg.Auth.LoginRate,
		LoginBurst: cfg.Auth.LoginBurst,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("judgehub stopped")
	return nil
}

// openBroker connects the configured change notifier and registers its
// health check. When the transport is unreachable the service keeps running
// on an in-process hub and the check reports the outage.
func openBroker(ctx context.Context, cfg *config.Config, checks *health.Registry) notify.Broker {
	var (
		broker interface {
			notify.Broker
			health.Checker
		}
		err error
	)

	switch cfg.Notifier.Backend {
	case "redis":
		broker, err = notify.NewRedisNotifier(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Notifier.ChannelPrefix)
	case "nats":
		broker, err = notify.NewNATSNotifier(cfg.NATS.URL, cfg.Notifier.ChannelPrefix)
	default:
		return notify.NewHub()
	}

	name := cfg.Notifier.Backend
	if err != nil {
		slog.Warn("notifier unavailable, falling back to in-process delivery",
			"backend", name,
			"error", err,
		)
		connectErr := fmt.Errorf("%s notifier unavailable: %w", name, err)
		checks.Register(name, health.CheckerFunc(func(ctx context.Context) error {
			return connectErr
		}))
		return notify.NewHub()
	}

	checks.Register(name, broker)
	slog.Info("notifier connected", "backend", name)
	return broker
}
