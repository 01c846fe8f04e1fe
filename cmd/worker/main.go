// Package main provides the worker process entry point. The worker
// consumes image-transformation jobs from RabbitMQ, runs them through the
// fetch/transform/store pipeline, and republishes or dead-letters failures
// per the retry policy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqplib "github.com/rabbitmq/amqp091-go"

	"github.com/swifty/pixpro-worker/internal/backend"
	"github.com/swifty/pixpro-worker/internal/backend/stub"
	"github.com/swifty/pixpro-worker/internal/config"
	"github.com/swifty/pixpro-worker/internal/domain"
	"github.com/swifty/pixpro-worker/internal/observability"
	"github.com/swifty/pixpro-worker/internal/pipeline"
	"github.com/swifty/pixpro-worker/internal/queue/amqp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker",
		slog.String("env", cfg.AppEnv),
		slog.String("worker_id", cfg.WorkerID),
		slog.Int("partitions", cfg.Partitions))

	conn, err := connectWithRetry(cfg)
	if err != nil {
		slog.Error("bus connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	// Topology declaration is one-shot and doesn't need a long-lived channel.
	setupCh, err := conn.Channel()
	if err != nil {
		slog.Error("bus channel open failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := amqp.DeclareTopology(setupCh, cfg.Partitions, cfg.RabbitMQDLXExchange, cfg.RabbitMQMessageTTL); err != nil {
		slog.Error("topology declare failed", slog.Any("error", err))
		os.Exit(1)
	}
	_ = setupCh.Close()

	retryPolicy, err := cfg.RetryPolicy()
	if err != nil {
		slog.Error("retry policy load failed", slog.Any("error", err))
		os.Exit(1)
	}

	fetcher, transformer, store := buildBackends(cfg)

	// The scheduler's republish goroutines call PublishWithContext on their
	// own timer, independent of any consumer's delivery loop, so it gets a
	// channel of its own rather than sharing one with a consumer.
	schedulerCh, err := conn.Channel()
	if err != nil {
		slog.Error("bus channel open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer schedulerCh.Close()
	scheduler := &amqp.Scheduler{Channel: schedulerCh, Logger: logger}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stopSignals()

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	defer cancelConsumers()

	for p := 0; p < cfg.Partitions; p++ {
		// amqp091-go channels are not safe for concurrent use by multiple
		// goroutines; each partition gets its own channel off the shared
		// connection so its Ack/Nack/publish calls never interleave with
		// another partition's.
		consumerCh, err := conn.Channel()
		if err != nil {
			slog.Error("bus channel open failed", slog.Int("partition", p), slog.Any("error", err))
			os.Exit(1)
		}
		defer consumerCh.Close()

		consumer := &amqp.Consumer{
			Channel:     consumerCh,
			Partition:   p,
			Prefetch:    cfg.PrefetchCount,
			ConsumerTag: fmt.Sprintf("%s-partition-%d", cfg.WorkerID, p),
			Pipeline: &pipeline.Pipeline{
				Fetcher:     fetcher,
				Transformer: transformer,
				Store:       store,
				Policy:      retryPolicy,
				Logger:      logger,
			},
			Policy:    retryPolicy,
			Scheduler: scheduler,
			Publisher: &amqp.Publisher{Channel: consumerCh},
			Logger:    logger,
		}
		go func(p int) {
			if err := consumer.Run(consumerCtx); err != nil && consumerCtx.Err() == nil {
				slog.Error("consumer exited", slog.Int("partition", p), slog.Any("error", err))
			}
		}(p)
	}

	srv := startSidePort(cfg)

	slog.Info("worker started, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("signal received, shutting down", slog.Duration("grace_period", cfg.ShutdownGracePeriod))

	cancelConsumers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("side port shutdown error", slog.Any("error", err))
	}

	slog.Info("worker stopped")
}

// connectWithRetry dials the bus with a bounded number of attempts, backing
// off by cfg.ReconnectBackoff between tries. Channels are opened separately
// per consumer/scheduler once the connection is established.
func connectWithRetry(cfg config.Config) (*amqplib.Connection, error) {
	attempts := cfg.ReconnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := amqplib.Dial(cfg.RabbitMQURL)
		if err != nil {
			lastErr = err
			slog.Warn("bus dial failed, retrying",
				slog.Int("attempt", attempt), slog.Int("max_attempts", attempts), slog.Any("error", err))
			if attempt < attempts {
				time.Sleep(cfg.ReconnectBackoff)
			}
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("op=main.connectWithRetry: exhausted %d attempts: %w", attempts, lastErr)
}

// buildBackends wires the real network-backed fetch/transform/store
// collaborators, or deterministic in-memory stubs when running in dev
// without upstream credentials configured.
func buildBackends(cfg config.Config) (domain.ImageFetcher, domain.ImageTransformer, domain.ImageStore) {
	timeout := cfg.ProcessingTimeout()

	if cfg.IsDev() && (cfg.GeminiAPIKey == "" || cfg.CloudinaryCloud == "") {
		slog.Warn("dev environment without upstream credentials, using stub backends")
		return stub.NewFetcher(), stub.NewTransformer(), stub.NewStore()
	}

	return backend.NewHTTPFetcher(cfg.OTELServiceName, timeout),
		backend.NewGeminiTransformer(cfg.OTELServiceName, cfg.GeminiAPIKey, timeout),
		backend.NewCloudinaryStore(cfg.OTELServiceName, cfg.CloudinaryCloud, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, timeout)
}

// startSidePort exposes /health and /metrics on cfg.HealthPort without
// blocking the caller; startup failures are logged, not fatal, since the
// bus consumers are the worker's primary function.
func startSidePort(cfg config.Config) *http.Server {
	r := chi.NewRouter()
	r.Use(observability.HTTPMetricsMiddleware)
	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HealthPort), Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("side port server error", slog.Any("error", err))
		}
	}()
	return srv
}

var processStart = time.Now()

func healthHandler(cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","uptimeSeconds":%d,"workerId":%q}`,
			int64(time.Since(processStart).Seconds()), cfg.WorkerID)
	}
}
