package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pgadapter "github.com/ledgerlab/payments/internal/adapters/postgres"
	"github.com/ledgerlab/payments/internal/config"
	"github.com/ledgerlab/payments/internal/faultinject"
	"github.com/ledgerlab/payments/internal/telemetry"
	"github.com/ledgerlab/payments/internal/worker"
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
	logger.Info("settlement worker starting",
		"env", cfg.Env,
		"mode", cfg.ConsistencyMode,
		"fail_profile", cfg.FailProfile,
		"seed", cfg.ExperimentSeed,
	)

	telemetry.SetupPropagation()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	injector, err := faultinject.New(cfg.FailProfile, cfg.ExperimentSeed)
	if err != nil {
		return err
	}

	store := pgadapter.NewStore(pool)
	processor := worker.NewProcessor(store, injector, cfg.Worker.ProcessingTimeout(), cfg.Worker.BatchSize, logger)
	reconciler := worker.NewReconciler(store, logger)
	runner := worker.NewRunner(processor, reconciler, cfg.Worker.PollInterval(), cfg.Worker.ReconciliationInterval(), logger)

	metricsServer := startMetricsServer(cfg.Worker.MetricsPort, logger)
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutCtx)
	}()

	logger.Info("settlement worker ready",
		"poll_interval", cfg.Worker.PollInterval(),
		"lease_ttl", cfg.Worker.ProcessingTimeout(),
		"batch_size", cfg.Worker.BatchSize,
		"metrics_port", cfg.Worker.MetricsPort,
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}

	logger.Info("settlement worker stopped")
	return nil
}

func startMetricsServer(port int, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "err", err)
		}
	}()
	return srv
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
