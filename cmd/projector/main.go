package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-engine/internal/kafka"
	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/projector"
	"github.com/ariefcatur/go-storefront-engine/internal/redisx"
)

// projector keeps the Redis product cache in step with stock-changing events.
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

	if cfg.Redis.Addr == "" {
		logger.Fatal("REDIS_ADDR is required for the projector")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisx.New(ctx, cfg.Redis.Addr)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	h, err := projector.New(projector.Deps{
		Dedup:  redisx.NewDedup(rdb, "projector", cfg.Redis.DedupTTL),
		Cache:  redisx.NewProductInvalidator(rdb),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("projector", zap.Error(err))
	}

	topics := projector.Topics()
	cons := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group, topics, cfg.Kafka.Workers, logger)

	logger.Info("projector consumer started",
		zap.String("group", cfg.Kafka.Group),
		zap.Strings("topics", topics),
		zap.Int("workers", cfg.Kafka.Workers),
	)
	if err := cons.Start(ctx, h.Handle); err != nil {
		logger.Fatal("consumer exited", zap.Error(err))
	}
	logger.Info("projector stopped")
}
