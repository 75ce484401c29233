package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"github.com/ledgerlab/payments/internal/adapters/httpserver"
	pgadapter "github.com/ledgerlab/payments/internal/adapters/postgres"
	redisadapter "github.com/ledgerlab/payments/internal/adapters/redis"
	"github.com/ledgerlab/payments/internal/app"
	"github.com/ledgerlab/payments/internal/config"
	"github.com/ledgerlab/payments/internal/telemetry"
)

var (
	version   = "dev"
	commitSHA = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.IsProd())
	logger.Info("payments intake starting",
		"version", version,
		"commit", commitSHA,
		"build_time", buildTime,
		"env", cfg.Env,
		"mode", cfg.ConsistencyMode,
	)

	telemetry.SetupPropagation()

	ctx := context.Background()
	pool, err := pgadapter.NewPool(ctx, pgadapter.PoolConfig{
		DSN:               cfg.Database.URL,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifeTime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthPeriod,
	})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("postgres connected", "max_conns", cfg.Database.MaxConns)

	if err := runMigrations(cfg.Database.URL, cfg.Database.MigrationsPath, cfg.Database.RecreateSchema, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	store := pgadapter.NewStore(pool)

	var cache *redisadapter.ResponseCache
	checks := []httpserver.ReadinessCheck{
		func(ctx context.Context) error { return pool.Ping(ctx) },
	}
	if cfg.Redis.Addr != "" {
		redisClient := redisadapter.NewClient(redisadapter.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisadapter.Ping(ctx, redisClient); err != nil {
			// The cache is a fast path only; the database keeps
			// idempotency correct without it.
			logger.Warn("redis unreachable, idempotency cache disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			cache = redisadapter.NewResponseCache(redisClient, cfg.Redis.Namespace, logger)
			checks = append(checks, func(ctx context.Context) error { return redisadapter.Ping(ctx, redisClient) })
			logger.Info("redis connected", "addr", cfg.Redis.Addr)
		}
	}

	svc := app.NewPaymentService(store, cache, cfg.Mode(), logger)
	handler := httpserver.NewHandler(svc, store, logger)

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Addr:            cfg.HTTP.Addr,
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			IdleTimeout:     cfg.HTTP.IdleTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		},
		handler,
		checks,
		logger,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info("payments intake ready",
		"addr", cfg.HTTP.Addr,
		"metrics", cfg.HTTP.Addr+"/metrics",
		"health", cfg.HTTP.Addr+"/health")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("fatal server error", "err", err)
		return err
	}

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("graceful shutdown error", "err", err)
		return err
	}

	logger.Info("payments intake stopped")
	return nil
}

func newLogger(prod bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: prod,
	}

	var handler slog.Handler
	if prod {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func runMigrations(dsn, migrationsPath string, recreate bool, log *slog.Logger) error {
	log.Info("running database migrations", "path", migrationsPath, "recreate", recreate)

	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}

	if recreate {
		if err := m.Drop(); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			return fmt.Errorf("close migrate after drop: %v / %v", srcErr, dbErr)
		}
		// Drop removes the version table too; a fresh instance
		// recreates it.
		m, err = migrate.New(migrationsPath, dsn)
		if err != nil {
			return fmt.Errorf("re-init migrate: %w", err)
		}
	}

	defer func() {
		srcErr, dbErr := m.Close()
		log.Info("migrate closed", "source_err", srcErr, "db_err", dbErr)
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}
