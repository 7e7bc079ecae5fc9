package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Abir7109/neon-trace-backend/internal/app"
	"github.com/Abir7109/neon-trace-backend/internal/config"
	"github.com/Abir7109/neon-trace-backend/internal/domain"
	"github.com/Abir7109/neon-trace-backend/internal/logging"
	"github.com/Abir7109/neon-trace-backend/internal/push"
	"github.com/Abir7109/neon-trace-backend/internal/routing"
	"github.com/Abir7109/neon-trace-backend/internal/server"
	"github.com/Abir7109/neon-trace-backend/internal/store"
)

type repositories struct {
	devices   domain.DeviceRepository
	locations domain.LocationRepository
	cleanup   func()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRepositories(cfg *config.Config, clock clockwork.Clock) repositories {
	switch {
	case cfg.DatabaseURL != "":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		slog.Info("Using PostgreSQL record store")
		return repositories{
			devices:   store.NewPostgresDeviceRepo(pool),
			locations: store.NewPostgresLocationRepo(pool),
			cleanup:   func() { pool.Close() },
		}

	case cfg.RedisURL != "":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("Using Redis record store")
		return repositories{
			devices:   store.NewRedisDeviceRepo(client, clock),
			locations: store.NewRedisLocationRepo(client, clock),
			cleanup:   func() { _ = client.Close() },
		}

	default:
		slog.Info("Using in-memory record store")
		return repositories{
			devices:   store.NewMemoryDeviceRepo(),
			locations: store.NewMemoryLocationRepo(),
			cleanup:   func() {},
		}
	}
}

func setupDispatcher(cfg *config.Config, clock clockwork.Clock) *push.Dispatcher {
	if cfg.FCMServiceAccount != "" {
		account, err := push.ParseServiceAccount(cfg.FCMServiceAccount)
		if err != nil {
			slog.Error("Failed to parse FCM service account", "error", err)
			os.Exit(1)
		}
		creds, err := push.NewCredentialCache(account, clock)
		if err != nil {
			slog.Error("Failed to initialize credential cache", "error", err)
			os.Exit(1)
		}
		slog.Info("Push delivery configured", "protocol", "v1", "project", account.ProjectID)
		return push.NewDispatcher(creds, account.ProjectID, cfg.FCMServerKey)
	}

	if cfg.FCMServerKey != "" {
		slog.Info("Push delivery configured", "protocol", "legacy")
	} else {
		slog.Warn("Push delivery not configured; broadcasts will fail")
	}
	return push.NewDispatcher(nil, "", cfg.FCMServerKey)
}

func runGracefulShutdown(srv *server.Server, cleanup func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cleanup()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	repos := setupRepositories(cfg, clock)

	dispatcher := setupDispatcher(cfg, clock)
	resolver := routing.NewResolver(cfg.ORSAPIKey, cfg.ORSBaseURL)

	appSvc := app.NewService(repos.devices, repos.locations, dispatcher, resolver, clock)

	srv := server.NewServer(cfg, appSvc)

	done := runGracefulShutdown(srv, repos.cleanup)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
