// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	authredis "github.com/gatehouse/gatehouse/internal/auth/redis"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP API server. The server exposes registration and login
endpoints, gates protected routes on live sessions, and serves metrics
and health probes on a separate listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	// Flags mirror config keys; explicitly set flags override the file.
	cmd.Flags().String("listen_addr", ":8080", "API listen address")
	cmd.Flags().String("metrics_addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database_url", "", "PostgreSQL connection URL")
	cmd.Flags().String("session_backend", config.BackendPostgres, "session store backend (postgres or redis)")
	cmd.Flags().String("redis_addr", "localhost:6379", "redis address for the redis session backend")
	cmd.Flags().Int("session_ttl_seconds", 3600, "session lifetime in seconds")
	cmd.Flags().String("cookie_name", "gatehouse_session", "session cookie name")
	cmd.Flags().Bool("cookie_secure", true, "set the Secure attribute on the session cookie")
	cmd.Flags().String("log_format", "json", "log format (json or text)")
	cmd.Flags().String("log_level", "info", "log level (debug, info, warn, error)")

	return cmd
}

// runServe starts the service and blocks until shutdown.
func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("gatehouse", version, cfg.LogFormat, cfg.LogLevel)
	logger := slog.Default()

	logger.Info("starting gatehouse",
		"listen_addr", cfg.ListenAddr,
		"session_backend", cfg.SessionBackend,
		"session_ttl_seconds", cfg.SessionTTLSeconds,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	users := authpg.NewUserRepository(db.Pool())

	var sessions auth.SessionRepository
	switch cfg.SessionBackend {
	case config.BackendRedis:
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Warn("error closing redis client", "error", closeErr)
			}
		}()
		if pingErr := rdb.Ping(ctx).Err(); pingErr != nil {
			return oops.Code("REDIS_CONNECT_FAILED").
				With("addr", cfg.RedisAddr).
				Wrap(pingErr)
		}
		sessions = authredis.NewSessionRepository(rdb)
	default:
		sessions = authpg.NewSessionRepository(db.Pool())
	}

	hasher, err := auth.NewArgon2idHasherWithParams(auth.HashParams{
		Time:    cfg.Argon2Time,
		Memory:  cfg.Argon2MemoryKiB,
		Threads: cfg.Argon2Threads,
	})
	if err != nil {
		return err
	}

	svc, err := auth.NewService(users, sessions, hasher,
		auth.WithSessionTTL(time.Duration(cfg.SessionTTLSeconds)*time.Second),
		auth.WithStoreTimeout(time.Duration(cfg.StoreTimeoutSeconds)*time.Second),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	// Observability server is optional; an empty address disables it.
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool {
			pingCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			return db.Pool().Ping(pingCtx) == nil
		})
		obsErrCh, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		go func() {
			if serveErr := <-obsErrCh; serveErr != nil {
				logger.Error("observability server error", "error", serveErr)
			}
		}()
	}

	api, err := httpapi.NewServer(cfg, svc, metricsOf(obsServer), logger)
	if err != nil {
		return err
	}

	apiErrCh, err := api.Start()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-apiErrCh:
		if serveErr != nil {
			logger.Error("api server failed", "error", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("gatehouse stopped")
	return nil
}

// metricsOf returns the server's metrics, or nil when observability is
// disabled.
func metricsOf(s *observability.Server) *observability.Metrics {
	if s == nil {
		return nil
	}
	return s.Metrics()
}
