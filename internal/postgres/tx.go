package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/outbox"
)

const selectProduct = `SELECT id, name, price, stock_quantity, active, updated_at FROM products WHERE id = $1`

const selectCartLines = `SELECT id, user_id, product_id, quantity, created_at FROM cart_lines WHERE user_id = $1 ORDER BY id`

type pgTx struct {
	tx     pgx.Tx
	tracer trace.Tracer
	logger *zap.Logger
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.GetProduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("product_id", id))

	p, err := scanProduct(t.tx.QueryRow(ctx, selectProduct, id))
	return p, fail(span, err)
}

// DecrementStock is a single conditional UPDATE. Concurrent callers queue
// on the row lock and re-evaluate the predicate, so stock never goes
// negative.
func (t *pgTx) DecrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.DecrementStock")
	defer span.End()
	span.SetAttributes(attribute.Int64("product_id", productID), attribute.Int("quantity", quantity))

	var remaining int
	err := t.tx.QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity`, productID, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		logging.Error(ctx, t.logger, "Error decreasing stock",
			zap.Int64("product_id", productID),
			zap.Int("quantity", quantity),
			zap.Error(err),
		)
		return 0, fail(span, fmt.Errorf("decrement stock for product %d: %w", productID, err))
	}

	var available int
	err = t.tx.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, orders.ErrProductNotFound
	}
	if err != nil {
		return 0, fail(span, err)
	}
	return available, &orders.InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
}

func (t *pgTx) IncrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.IncrementStock")
	defer span.End()
	span.SetAttributes(attribute.Int64("product_id", productID), attribute.Int("quantity", quantity))

	var remaining int
	err := t.tx.QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock_quantity`, productID, quantity).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, orders.ErrProductNotFound
	}
	return remaining, fail(span, err)
}

func (t *pgTx) GetCartLine(ctx context.Context, id int64) (orders.CartLine, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.GetCartLine")
	defer span.End()

	l, err := scanCartLine(t.tx.QueryRow(ctx,
		`SELECT id, user_id, product_id, quantity, created_at FROM cart_lines WHERE id = $1`, id))
	return l, fail(span, err)
}

// FindCartLine locks the line so concurrent merges queue behind each other.
func (t *pgTx) FindCartLine(ctx context.Context, userID, productID int64) (orders.CartLine, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.FindCartLine")
	defer span.End()

	l, err := scanCartLine(t.tx.QueryRow(ctx,
		`SELECT id, user_id, product_id, quantity, created_at FROM cart_lines WHERE user_id = $1 AND product_id = $2 FOR UPDATE`,
		userID, productID))
	return l, fail(span, err)
}

func (t *pgTx) InsertCartLine(ctx context.Context, line *orders.CartLine) error {
	ctx, span := t.tracer.Start(ctx, "Tx.InsertCartLine")
	defer span.End()

	// a concurrent first add of the same product merges instead of failing
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cart_lines (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		RETURNING id, quantity, created_at`, line.UserID, line.ProductID, line.Quantity).Scan(&line.ID, &line.Quantity, &line.CreatedAt)
	return fail(span, err)
}

func (t *pgTx) SetCartLineQuantity(ctx context.Context, id int64, quantity int) error {
	ctx, span := t.tracer.Start(ctx, "Tx.SetCartLineQuantity")
	defer span.End()

	tag, err := t.tx.Exec(ctx, `UPDATE cart_lines SET quantity = $2 WHERE id = $1`, id, quantity)
	if err != nil {
		return fail(span, err)
	}
	if tag.RowsAffected() == 0 {
		return orders.ErrCartLineNotFound
	}
	return nil
}

func (t *pgTx) DeleteCartLine(ctx context.Context, id int64) error {
	ctx, span := t.tracer.Start(ctx, "Tx.DeleteCartLine")
	defer span.End()

	_, err := t.tx.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1`, id)
	return fail(span, err)
}

func (t *pgTx) ListCartLines(ctx context.Context, userID int64) ([]orders.CartLine, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.ListCartLines")
	defer span.End()

	lines, err := t.cartLines(ctx, selectCartLines, userID)
	return lines, fail(span, err)
}

func (t *pgTx) LockCartLines(ctx context.Context, userID int64) ([]orders.CartLine, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.LockCartLines")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID))

	lines, err := t.cartLines(ctx, selectCartLines+` FOR UPDATE`, userID)
	return lines, fail(span, err)
}

func (t *pgTx) cartLines(ctx context.Context, query string, userID int64) ([]orders.CartLine, error) {
	rows, err := t.tx.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.CartLine, error) {
		return scanCartLine(row)
	})
}

func (t *pgTx) DeleteCartLines(ctx context.Context, userID int64, ids []int64) (int, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.DeleteCartLines")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID), attribute.Int("count", len(ids)))

	tag, err := t.tx.Exec(ctx, `DELETE FROM cart_lines WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return 0, fail(span, err)
	}
	return int(tag.RowsAffected()), nil
}

// InsertOrder runs inside a savepoint so a reference code collision leaves
// the surrounding transaction usable for another attempt.
func (t *pgTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	ctx, span := t.tracer.Start(ctx, "Tx.InsertOrder")
	defer span.End()
	span.SetAttributes(attribute.String("reference_code", o.ReferenceCode), attribute.Int("items", len(o.Items)))

	return fail(span, t.savepoint(ctx, func(sp pgx.Tx) error {
		err := sp.QueryRow(ctx, `
			INSERT INTO orders (reference_code, user_id, status, total_amount, payment_method, shipping_address)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`,
			o.ReferenceCode, o.UserID, string(o.Status), o.TotalAmount, o.PaymentMethod, o.ShippingAddress,
		).Scan(&o.ID, &o.CreatedAt)
		if isUniqueViolation(err, "orders_reference_code_key") {
			return orders.ErrDuplicateReference
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return insertItems(ctx, sp, "order_items", "order_id", o.ID, o.Items)
	}))
}

func (t *pgTx) InsertBooking(ctx context.Context, b *orders.Booking) error {
	ctx, span := t.tracer.Start(ctx, "Tx.InsertBooking")
	defer span.End()
	span.SetAttributes(attribute.String("reference_code", b.ReferenceCode))

	return fail(span, t.savepoint(ctx, func(sp pgx.Tx) error {
		err := sp.QueryRow(ctx, `
			INSERT INTO bookings (reference_code, user_id, total_amount, pickup_date)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			b.ReferenceCode, b.UserID, b.TotalAmount, b.PickupDate,
		).Scan(&b.ID, &b.CreatedAt)
		if isUniqueViolation(err, "bookings_reference_code_key") {
			return orders.ErrDuplicateReference
		}
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return insertItems(ctx, sp, "booking_items", "booking_id", b.ID, b.Items)
	}))
}

func (t *pgTx) savepoint(ctx context.Context, fn func(sp pgx.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

// insertItems writes items with table and fk chosen from fixed identifiers.
func insertItems(ctx context.Context, tx pgx.Tx, table, fk string, recordID int64, items []orders.Item) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, product_id, quantity, price) VALUES ($1, $2, $3, $4) RETURNING id`, table, fk)
	for i := range items {
		items[i].RecordID = recordID
		if err := tx.QueryRow(ctx, query, recordID, items[i].ProductID, items[i].Quantity, items[i].Price).Scan(&items[i].ID); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func (t *pgTx) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", id))

	list, err := t.queryOrders(ctx, `WHERE id = $1`, id)
	if err != nil {
		return orders.Order{}, fail(span, err)
	}
	if len(list) == 0 {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return list[0], nil
}

func (t *pgTx) SetOrderStatus(ctx context.Context, id int64, status orders.Status) error {
	ctx, span := t.tracer.Start(ctx, "Tx.SetOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", id), attribute.String("status", string(status)))

	tag, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fail(span, err)
	}
	if tag.RowsAffected() == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) ListOrders(ctx context.Context, userID int64) ([]orders.Order, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.ListOrders")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID))

	list, err := t.queryOrders(ctx, `WHERE ($1::bigint = 0 OR user_id = $1) ORDER BY created_at DESC, id DESC`, userID)
	return list, fail(span, err)
}

func (t *pgTx) ListBookings(ctx context.Context, userID int64) ([]orders.Booking, error) {
	ctx, span := t.tracer.Start(ctx, "Tx.ListBookings")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID))

	rows, err := t.tx.Query(ctx, `
		SELECT id, reference_code, user_id, total_amount, pickup_date, created_at
		FROM bookings
		WHERE ($1::bigint = 0 OR user_id = $1)
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fail(span, err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Booking, error) {
		var b orders.Booking
		err := row.Scan(&b.ID, &b.ReferenceCode, &b.UserID, &b.TotalAmount, &b.PickupDate, &b.CreatedAt)
		return b, err
	})
	if err != nil {
		return nil, fail(span, err)
	}

	ids := make([]int64, len(list))
	for i, b := range list {
		ids[i] = b.ID
	}
	items, err := t.items(ctx, "booking_items", "booking_id", ids)
	if err != nil {
		return nil, fail(span, err)
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, nil
}

func (t *pgTx) queryOrders(ctx context.Context, where string, args ...any) ([]orders.Order, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, reference_code, user_id, status, total_amount, payment_method, shipping_address, created_at
		FROM orders `+where, args...)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Order, error) {
		var (
			o      orders.Order
			status string
		)
		err := row.Scan(&o.ID, &o.ReferenceCode, &o.UserID, &status, &o.TotalAmount, &o.PaymentMethod, &o.ShippingAddress, &o.CreatedAt)
		o.Status = orders.Status(status)
		return o, err
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(list))
	for i, o := range list {
		ids[i] = o.ID
	}
	items, err := t.items(ctx, "order_items", "order_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, nil
}

// items loads line items for the given records, keyed by record id.
func (t *pgTx) items(ctx context.Context, table, fk string, recordIDs []int64) (map[int64][]orders.Item, error) {
	out := make(map[int64][]orders.Item, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, fmt.Sprintf(
		`SELECT id, %[2]s, product_id, quantity, price FROM %[1]s WHERE %[2]s = ANY($1) ORDER BY id`, table, fk), recordIDs)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Item, error) {
		var it orders.Item
		err := row.Scan(&it.ID, &it.RecordID, &it.ProductID, &it.Quantity, &it.Price)
		return it, err
	})
	if err != nil {
		return nil, err
	}
	for _, it := range list {
		out[it.RecordID] = append(out[it.RecordID], it)
	}
	return out, nil
}

func (t *pgTx) AppendOutbox(ctx context.Context, msg outbox.Message) error {
	ctx, span := t.tracer.Start(ctx, "Tx.AppendOutbox")
	defer span.End()
	span.SetAttributes(attribute.String("topic", msg.Topic), attribute.String("event_type", msg.EventType))

	headers := msg.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (topic, key, event_type, payload, headers)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.Topic, msg.Key, msg.EventType, msg.Payload, headers)
	return fail(span, err)
}

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.Active, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, err
}

func scanCartLine(row pgx.Row) (orders.CartLine, error) {
	var l orders.CartLine
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.CartLine{}, orders.ErrCartLineNotFound
	}
	return l, err
}
