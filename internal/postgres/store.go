package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/outbox"
)

const uniqueViolation = "23505"

// Store is the Postgres backed orders.Store and outbox.Repository.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		tracer: otel.Tracer("storefront/postgres"),
		logger: logger,
	}
}

func (s *Store) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	ctx, span := s.tracer.Start(ctx, "Store.GetProduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("product_id", id))

	p, err := scanProduct(s.pool.QueryRow(ctx, selectProduct, id))
	return p, fail(span, err)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	return s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, tracer: s.tracer, logger: s.logger})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logging.Error(ctx, s.logger, "Failed to rollback transaction", zap.Error(err))
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ClaimBatch locks up to limit unpublished rows with SKIP LOCKED so several
// relays can run side by side.
func (s *Store) ClaimBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []outbox.Message, marks outbox.Marker) error) error {
	return s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ctx, span := s.tracer.Start(ctx, "Store.ClaimBatch")
		defer span.End()
		span.SetAttributes(attribute.Int("batch_size", limit))

		rows, err := tx.Query(ctx, `
			SELECT id, topic, key, event_type, payload, headers, attempts, COALESCE(last_error, ''), created_at
			FROM outbox
			WHERE published_at IS NULL AND attempts < $2
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, limit, outbox.MaxAttempts)
		if err != nil {
			return fail(span, fmt.Errorf("query outbox: %w", err))
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Message, error) {
			var m outbox.Message
			err := row.Scan(&m.ID, &m.Topic, &m.Key, &m.EventType, &m.Payload, &m.Headers, &m.Attempts, &m.LastError, &m.CreatedAt)
			return m, err
		})
		if err != nil {
			return fail(span, fmt.Errorf("scan outbox: %w", err))
		}
		span.SetAttributes(attribute.Int("result_count", len(batch)))

		return fn(ctx, batch, &marker{tx: tx, tracer: s.tracer})
	})
}

type marker struct {
	tx     pgx.Tx
	tracer trace.Tracer
}

func (m *marker) MarkPublished(ctx context.Context, id int64) error {
	ctx, span := m.tracer.Start(ctx, "Store.MarkPublished")
	defer span.End()
	span.SetAttributes(attribute.Int64("event_id", id))

	_, err := m.tx.Exec(ctx, `UPDATE outbox SET published_at = NOW(), last_error = NULL WHERE id = $1`, id)
	return fail(span, err)
}

func (m *marker) MarkFailed(ctx context.Context, id int64, reason string) error {
	ctx, span := m.tracer.Start(ctx, "Store.MarkFailed")
	defer span.End()
	span.SetAttributes(attribute.Int64("event_id", id), attribute.String("outbox.error_message", reason))

	_, err := m.tx.Exec(ctx, `UPDATE outbox SET last_error = $1, attempts = attempts + 1 WHERE id = $2`, reason, id)
	return fail(span, err)
}

// fail records err on span and passes it through.
func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

var (
	_ orders.Store      = (*Store)(nil)
	_ outbox.Repository = (*Store)(nil)
)
