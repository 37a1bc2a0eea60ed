// Package main is the entry point for the tiergate webhook server.
//
// It loads configuration, connects the ledger and the optional dedupe cache,
// builds the entitlement processor and the dispatcher selected by
// DISPATCH_MODE, mounts POST /webhooks and GET /health on the core chassis,
// and serves until SIGINT or SIGTERM.
//
// In "local" dispatch mode accepted events are processed by an in-process
// worker pool. In "sqs" mode they are published to the entitlement queue and
// processed by cmd/entitlement-worker.
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"tiergate/internal/api/handlers"
	"tiergate/internal/config"
	"tiergate/internal/core"
	"tiergate/internal/db"
	"tiergate/internal/dedupe"
	"tiergate/internal/dispatch"
	"tiergate/internal/entitlement"
	"tiergate/internal/external"
	"tiergate/internal/queue"
	"tiergate/internal/telemetry"
	"tiergate/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// infra holds the connections opened at startup. buildServer takes it as a
// value so tests can supply in-memory replacements.
type infra struct {
	ledger  entitlement.Ledger
	claims  dedupe.Store
	metrics telemetry.Recorder
	sqs     queue.SQSSender
	probes  []core.HealthProbe
	closers []func(ctx context.Context) error
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSecretProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tiergate starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"dispatch_mode", string(cfg.Dispatch.Mode),
		"revocation_policy", string(cfg.Entitlement.RevocationPolicy),
	)
	if cfg.Webhook.Secret.IsEmpty() {
		logger.Error("WEBHOOK_SECRET is not set; every webhook delivery will be answered with 500")
	}

	ctx := context.Background()

	deps, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv, err := buildServer(cfg, logger, deps)
	if err != nil {
		return err
	}

	return runHTTPServer(srv, cfg, logger)
}

// connect opens the ledger pool, runs migrations when asked to, dials the
// dedupe cache and builds the AWS clients the configuration calls for.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (infra, error) {
	var deps infra

	if cfg.Database.MigrateOnStart {
		if err := migrateUp(cfg.Database.URL.Unmask(), logger); err != nil {
			return deps, err
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return deps, fmt.Errorf("connecting to database: %w", err)
	}
	deps.ledger = db.NewLedger(pool)
	deps.probes = append(deps.probes, core.PingProbe{ProbeName: "database", Ping: pool.Ping})
	deps.closers = append(deps.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	deps.claims = dedupe.Nop{}
	if !cfg.Dedupe.RedisURL.IsEmpty() {
		store, closeFn, err := dedupe.Dial(ctx, cfg.Dedupe.RedisURL.Unmask(), cfg.Dedupe.TTL, logger.With("component", "dedupe"))
		if err != nil {
			pool.Close()
			return deps, fmt.Errorf("connecting to redis: %w", err)
		}
		deps.claims = store
		deps.probes = append(deps.probes, core.PingProbe{ProbeName: "redis", Ping: store.Ping})
		deps.closers = append(deps.closers, func(context.Context) error { return closeFn() })
	}

	deps.metrics = telemetry.Nop{}
	if !cfg.Observability.EnableMetrics && cfg.Dispatch.Mode != types.DispatchModeSQS {
		return deps, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		return deps, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	if cfg.Observability.EnableMetrics {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		recorder := telemetry.NewCloudWatchRecorder(cw, cfg.Observability.MetricNamespace, logger.With("component", "metrics"))
		deps.metrics = recorder
		// Runs after the pool drain so the last outcomes are published.
		deps.closers = append(deps.closers, recorder.Close)
	}

	if cfg.Dispatch.Mode == types.DispatchModeSQS {
		deps.sqs = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
	}

	return deps, nil
}

// migrateUp applies pending ledger migrations before the pool is opened.
func migrateUp(databaseURL string, logger *slog.Logger) error {
	mg, err := db.NewMigrator(databaseURL, logger.With("component", "migrate"))
	if err != nil {
		return fmt.Errorf("opening migrator: %w", err)
	}
	defer mg.Close()

	if err := mg.Up(); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// buildServer wires the processor, the dispatcher and the webhook handler
// onto a core.Server. Routes are mounted before returning.
func buildServer(cfg *config.Config, logger *slog.Logger, deps infra) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = deps.probes

	if m, ok := deps.metrics.(core.MetricsCollector); ok {
		srv.Metrics = m
	}

	registry := external.NewClientRegistry(cfg, logger)

	var dispatcher handlers.Dispatcher
	switch cfg.Dispatch.Mode {
	case types.DispatchModeSQS:
		if deps.sqs == nil {
			return nil, fmt.Errorf("dispatch mode %q requires an SQS client", cfg.Dispatch.Mode)
		}
		dispatcher = queue.NewEventPublisher(deps.sqs, cfg.AWS.EntitlementQueue, logger.With("component", "publisher"))
		srv.Closers = append(srv.Closers, deps.closers...)
	default:
		processor := entitlement.New(
			deps.ledger,
			registry.Identity,
			cfg.Entitlement.RevocationPolicy,
			deps.claims,
			deps.metrics,
			logger.With("component", "entitlement"),
		)
		pool := dispatch.NewPool(dispatch.PoolConfig{
			Workers:   cfg.Dispatch.Workers,
			QueueSize: cfg.Dispatch.QueueSize,
		}, logger.With("component", "dispatch"))
		pool.Start()
		dispatcher = dispatch.NewLocal(pool, processor)
		srv.Closers = append(srv.Closers, drainThenClose(pool, deps.closers, logger))
	}

	webhooks := handlers.NewWebhookHandler(handlers.WebhookHandlerConfig{
		Secret:       cfg.Webhook.Secret,
		Verifier:     registry.Verifier,
		Dispatcher:   dispatcher,
		Metrics:      deps.metrics,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		Logger:       logger.With("component", "webhook"),
	})
	srv.RouteRegistrars = append(srv.RouteRegistrars, webhooks.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// drainThenClose returns a closer that waits for the dispatch pool and then
// runs closers in order. When the drain is interrupted the workers still hold
// ledger and redis connections, so closers are skipped and the remaining
// tasks run until the process exits.
func drainThenClose(pool *dispatch.Pool, closers []func(context.Context) error, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Stop(ctx); err != nil {
			logger.Error("dispatch drain interrupted; leaving connections open",
				"abandoned", pool.Pending()+pool.InFlight(),
				"error", err,
			)
			return err
		}

		var errs []error
		for _, closeFn := range closers {
			if err := closeFn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown", "timeout", cfg.Server.ShutdownTimeout.String())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// The dispatch drain gets its own budget; the HTTP drain may have used up
	// the shutdown timeout.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Dispatch.DrainTimeout)
	defer drainCancel()

	// Drains the dispatch pool, then closes the database and redis clients.
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
