package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-engine/internal/kafka"
	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/metrics"
	"github.com/ariefcatur/go-storefront-engine/internal/outbox"
	"github.com/ariefcatur/go-storefront-engine/internal/postgres"
	"github.com/ariefcatur/go-storefront-engine/internal/telemetry"
)

// relay publishes committed outbox rows to Kafka.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Postgres.DSN == "" {
		logger.Fatal("POSTGRES_DSN is required for the outbox relay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, cfg.ServiceName+"-relay", cfg.Env)
	if err != nil {
		logger.Fatal("tracer", zap.Error(err))
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	pool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	producer := kafkax.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	reg := prometheus.NewRegistry()
	relay := outbox.NewRelay(postgres.NewStore(pool, logger), producer, logger, metrics.New(reg), outbox.RelayConfig{
		BatchSize:       cfg.Relay.BatchSize,
		Interval:        cfg.Relay.Interval,
		BreakerFailures: cfg.Relay.BreakerFailures,
		BreakerTimeout:  cfg.Relay.BreakerTimeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener", zap.Error(err))
		}
	}()

	relay.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
