package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Observer receives one call per publish attempt.
type Observer interface {
	OutboxPublish(topic, result string)
}

type RelayConfig struct {
	BatchSize       int
	Interval        time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type Relay struct {
	repo     Repository
	pub      Publisher
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	observer Observer
	batch    int
	interval time.Duration
}

func NewRelay(repo Repository, pub Publisher, logger *zap.Logger, observer Observer, cfg RelayConfig) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "outbox-publish",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Relay{
		repo:     repo,
		pub:      pub,
		breaker:  breaker,
		logger:   logger,
		observer: observer,
		batch:    cfg.BatchSize,
		interval: cfg.Interval,
	}
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	logging.Info(ctx, r.logger, "Starting outbox relay",
		zap.Int("batch_size", r.batch),
		zap.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, r.logger, "Outbox relay stopping")
			return
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				logging.Error(ctx, r.logger, "Error processing outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many messages went out.
// An open breaker ends the batch early; unpublished rows are picked up again
// on a later tick.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	published := 0
	err := r.repo.ClaimBatch(ctx, r.batch, func(ctx context.Context, batch []Message, marks Marker) error {
		if len(batch) == 0 {
			return nil
		}
		logging.Debug(ctx, r.logger, "Processing outbox messages", zap.Int("count", len(batch)))

		for _, msg := range batch {
			_, err := r.breaker.Execute(func() (any, error) {
				return nil, r.pub.Publish(ctx, msg.Topic, msg.Key, msg.Payload, msg.Headers)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				r.observe(msg.Topic, "skipped")
				logging.Warn(ctx, r.logger, "Publisher unavailable, deferring rest of batch",
					zap.Int64("id", msg.ID),
					zap.Error(err),
				)
				return nil
			}
			if err != nil {
				r.observe(msg.Topic, "failed")
				logging.Error(ctx, r.logger, "Outbox publish failed",
					zap.Int64("id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Error(err),
				)
				if markErr := marks.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
					return fmt.Errorf("mark message %d failed: %w", msg.ID, markErr)
				}
				continue
			}

			r.observe(msg.Topic, "published")
			if err := marks.MarkPublished(ctx, msg.ID); err != nil {
				return fmt.Errorf("mark message %d published: %w", msg.ID, err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (r *Relay) observe(topic, result string) {
	if r.observer != nil {
		r.observer.OutboxPublish(topic, result)
	}
}
