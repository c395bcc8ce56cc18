package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/cart"
	"github.com/ariefcatur/go-storefront-engine/internal/config"
	"github.com/ariefcatur/go-storefront-engine/internal/fulfillment"
	"github.com/ariefcatur/go-storefront-engine/internal/httpx"
	"github.com/ariefcatur/go-storefront-engine/internal/inventory"
	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/memstore"
	"github.com/ariefcatur/go-storefront-engine/internal/metrics"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/postgres"
	"github.com/ariefcatur/go-storefront-engine/internal/redisx"
	"github.com/ariefcatur/go-storefront-engine/internal/refcode"
	"github.com/ariefcatur/go-storefront-engine/internal/storefront"
	"github.com/ariefcatur/go-storefront-engine/internal/telemetry"
)

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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, cfg.ServiceName, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		catalog orders.Catalog = store
		idem    storefront.Idempotency
		cache   storefront.ProductCache
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.New(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()

		cached := redisx.NewCachedCatalog(store, rdb, cfg.Redis.ProductTTL, logger)
		catalog, cache = cached, cached
		idem = redisx.NewIdempotency(rdb, cfg.Redis.IdempotencyTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, product cache and checkout idempotency disabled")
	}

	ledger := inventory.NewLedger(logger, m)
	agg, err := cart.New(cart.Deps{Store: store, Logger: logger})
	if err != nil {
		return err
	}
	conv, err := fulfillment.New(fulfillment.Deps{
		Store:             store,
		Ledger:            ledger,
		Codes:             refcode.New(nil),
		Logger:            logger,
		Metrics:           m,
		ReferenceAttempts: cfg.Checkout.ReferenceAttempts,
		Service:           cfg.ServiceName,
	})
	if err != nil {
		return err
	}
	svc, err := storefront.New(storefront.Deps{
		Cart:        agg,
		Converter:   conv,
		Catalog:     catalog,
		Idempotency: idem,
		Cache:       cache,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpx.NewRouter(httpx.RouterDeps{
			Service:        svc,
			Logger:         logger,
			Gatherer:       reg,
			RequestTimeout: cfg.HTTP.RequestTimeout,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore connects to Postgres, or falls back to a seeded in-memory store
// when no DSN is configured.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (orders.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		s := memstore.New(nil)
		seeded := memstore.Seed(s)
		logger.Warn("POSTGRES_DSN not set, using in-memory store", zap.Int("products", len(seeded)))
		return s, func() {}, nil
	}

	if cfg.Postgres.MigrateOnStart {
		if err := postgres.Migrate(cfg.Postgres.DSN); err != nil {
			return nil, nil, err
		}
	}
	pool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(pool, logger), pool.Close, nil
}
