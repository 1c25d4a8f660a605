package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shopsync-api/internal/model"
	"shopsync-api/pkg/uid"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name      string
	numbered  bool   // $1 placeholders instead of ?
	forUpdate string // row lock suffix for SELECT inside a transaction
}

// SQLStore implements EntityStore and RawEventRepository over database/sql.
// Concurrency control is delegated to the database: inserts are guarded by
// the source_id unique constraints and existing rows are locked before merge.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// rebind rewrites ? placeholders for dialects that number them.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withTx runs fn in a transaction that is rolled back on every exit path
// except a successful commit.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const orderColumns = `id, source_id, order_number, financial_status, fulfillment_status,
	total_price, currency, customer_source_id, version, items_version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o        model.Order
		customer sql.NullInt64
	)
	err := row.Scan(&o.ID, &o.SourceID, &o.OrderNumber, &o.FinancialStatus, &o.FulfillmentStatus,
		&o.TotalPrice, &o.Currency, &customer, &o.Version, &o.ItemsVersion, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if customer.Valid {
		id := customer.Int64
		o.CustomerSourceID = &id
	}
	o.Items = []model.OrderItem{}
	return &o, nil
}

// UpsertOrder creates the order with its items, or locks and merges the
// existing row, inside one transaction.
func (s *SQLStore) UpsertOrder(ctx context.Context, change *model.OrderChange, merge OrderMergeFunc) (UpsertResult, error) {
	result := UpsertResult{Applied: true}
	now := s.now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		fresh := change.NewOrder(now)

		var id int64
		err := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO orders (source_id, order_number, financial_status, fulfillment_status,
				total_price, currency, customer_source_id, version, items_version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_id) DO NOTHING
			RETURNING id`),
			fresh.SourceID, fresh.OrderNumber, fresh.FinancialStatus, fresh.FulfillmentStatus,
			fresh.TotalPrice, fresh.Currency, fresh.CustomerSourceID, fresh.Version, fresh.ItemsVersion,
			fresh.CreatedAt, fresh.UpdatedAt,
		).Scan(&id)

		switch {
		case err == nil:
			result.ID = id
			result.Created = true
			return s.insertItems(ctx, tx, id, fresh.Items)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to insert order %d: %w", change.SourceID, err)
		}

		// The source id already exists: lock the row and merge.
		current, err := scanOrder(tx.QueryRowContext(ctx, s.rebind(
			`SELECT `+orderColumns+` FROM orders WHERE source_id = ?`+s.dialect.forUpdate), change.SourceID))
		if err != nil {
			return fmt.Errorf("failed to lock order %d: %w", change.SourceID, err)
		}
		result.ID = current.ID

		merged, replaceItems := merge(*current, change)
		merged.UpdatedAt = now

		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE orders SET
				order_number = ?, financial_status = ?, fulfillment_status = ?, total_price = ?,
				currency = ?, customer_source_id = ?, version = ?, items_version = ?, updated_at = ?
			WHERE id = ?`),
			merged.OrderNumber, merged.FinancialStatus, merged.FulfillmentStatus, merged.TotalPrice,
			merged.Currency, merged.CustomerSourceID, merged.Version, merged.ItemsVersion, merged.UpdatedAt,
			current.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update order %d: %w", change.SourceID, err)
		}

		if !replaceItems {
			return nil
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM order_items WHERE order_id = ?`), current.ID); err != nil {
			return fmt.Errorf("failed to clear items of order %d: %w", change.SourceID, err)
		}
		return s.insertItems(ctx, tx, current.ID, merged.Items)
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}

func (s *SQLStore) insertItems(ctx context.Context, tx *sql.Tx, orderID int64, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO order_items (order_id, product_source_id, variant_source_id, title, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		_, err := stmt.ExecContext(ctx, orderID, item.ProductSourceID, item.VariantSourceID,
			item.Title, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert item of order id %d: %w", orderID, err)
		}
	}
	return nil
}

// DeleteOrder removes the order and its items in one transaction.
func (s *SQLStore) DeleteOrder(ctx context.Context, sourceID int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, s.rebind(
			`SELECT id FROM orders WHERE source_id = ?`+s.dialect.forUpdate), sourceID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock order %d: %w", sourceID, err)
		}

		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM order_items WHERE order_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete items of order %d: %w", sourceID, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM orders WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete order %d: %w", sourceID, err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

const productColumns = `id, source_id, title, description, vendor, category, status, image_url,
	price, platform_created_at, platform_updated_at, version, updated_at`

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p                model.Product
		created, updated sql.NullTime
		version          int64
	)
	err := row.Scan(&p.ID, &p.SourceID, &p.Title, &p.Description, &p.Vendor, &p.Category, &p.Status,
		&p.ImageURL, &p.Price, &created, &updated, &version, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if created.Valid {
		t := created.Time.UTC()
		p.PlatformCreatedAt = &t
	}
	if updated.Valid {
		t := updated.Time.UTC()
		p.PlatformUpdatedAt = &t
	}
	return &p, nil
}

// UpsertProduct inserts an unseen product or locks and merges the stored one.
// A merge that declines leaves the row untouched and reports Applied=false.
func (s *SQLStore) UpsertProduct(ctx context.Context, change *model.ProductChange, merge ProductMergeFunc) (UpsertResult, error) {
	var result UpsertResult
	now := s.now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		fresh := model.Product{UpdatedAt: now}
		change.ApplyTo(&fresh)

		var id int64
		err := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO products (source_id, title, description, vendor, category, status, image_url,
				price, platform_created_at, platform_updated_at, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_id) DO NOTHING
			RETURNING id`),
			fresh.SourceID, fresh.Title, fresh.Description, fresh.Vendor, fresh.Category, fresh.Status,
			fresh.ImageURL, fresh.Price, fresh.PlatformCreatedAt, fresh.PlatformUpdatedAt, fresh.Version(),
			fresh.UpdatedAt,
		).Scan(&id)

		switch {
		case err == nil:
			result = UpsertResult{ID: id, Created: true, Applied: true}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to insert product %d: %w", change.SourceID, err)
		}

		current, err := scanProduct(tx.QueryRowContext(ctx, s.rebind(
			`SELECT `+productColumns+` FROM products WHERE source_id = ?`+s.dialect.forUpdate), change.SourceID))
		if err != nil {
			return fmt.Errorf("failed to lock product %d: %w", change.SourceID, err)
		}
		result.ID = current.ID

		merged, apply := merge(*current, change)
		if !apply {
			return nil
		}
		merged.UpdatedAt = now

		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE products SET
				title = ?, description = ?, vendor = ?, category = ?, status = ?, image_url = ?,
				price = ?, platform_created_at = ?, platform_updated_at = ?, version = ?, updated_at = ?
			WHERE id = ?`),
			merged.Title, merged.Description, merged.Vendor, merged.Category, merged.Status, merged.ImageURL,
			merged.Price, merged.PlatformCreatedAt, merged.PlatformUpdatedAt, merged.Version(), merged.UpdatedAt,
			current.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update product %d: %w", change.SourceID, err)
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}

// UpsertCustomer inserts or fills a customer in a single statement.
func (s *SQLStore) UpsertCustomer(ctx context.Context, c *model.Customer) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO customers (source_id, email, first_name, last_name, phone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE customers.email END,
			first_name = CASE WHEN excluded.first_name <> '' THEN excluded.first_name ELSE customers.first_name END,
			last_name = CASE WHEN excluded.last_name <> '' THEN excluded.last_name ELSE customers.last_name END,
			phone = CASE WHEN excluded.phone <> '' THEN excluded.phone ELSE customers.phone END,
			updated_at = excluded.updated_at`),
		c.SourceID, c.Email, c.FirstName, c.LastName, c.Phone, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert customer %d: %w", c.SourceID, err)
	}
	return nil
}

// GetOrder returns the order with its items, or nil when absent.
func (s *SQLStore) GetOrder(ctx context.Context, sourceID int64) (*model.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+orderColumns+` FROM orders WHERE source_id = ?`), sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	orders := []model.Order{*o}
	if err := s.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders returns a page of orders, newest first, with items.
func (s *SQLStore) ListOrders(ctx context.Context, limit, offset int) ([]model.Order, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := s.loadItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// loadItems fills Items for every order in place.
func (s *SQLStore) loadItems(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[int64]int, len(orders))
	args := make([]any, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		args[i] = o.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(orders)), ", ")

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, order_id, product_source_id, variant_source_id, title, quantity, unit_price
		FROM order_items WHERE order_id IN (`+placeholders+`) ORDER BY id`), args...)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item             model.OrderItem
			product, variant sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &product, &variant, &item.Title, &item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if product.Valid {
			v := product.Int64
			item.ProductSourceID = &v
		}
		if variant.Valid {
			v := variant.Int64
			item.VariantSourceID = &v
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

// GetProduct returns the product or nil when absent.
func (s *SQLStore) GetProduct(ctx context.Context, sourceID int64) (*model.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+productColumns+` FROM products WHERE source_id = ?`), sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ListProducts returns a page of products ordered by title.
func (s *SQLStore) ListProducts(ctx context.Context, limit, offset int) ([]model.Product, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+productColumns+` FROM products ORDER BY title, id LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

// GetCustomer returns the customer or nil when absent.
func (s *SQLStore) GetCustomer(ctx context.Context, sourceID int64) (*model.Customer, error) {
	var c model.Customer
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, source_id, email, first_name, last_name, phone, updated_at
		FROM customers WHERE source_id = ?`), sourceID,
	).Scan(&c.ID, &c.SourceID, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// Record appends a raw event.
func (s *SQLStore) Record(ctx context.Context, event *model.RawEvent) error {
	if event.ID == "" {
		event.ID = uid.New()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO raw_events (id, topic, webhook_id, payload, received_at)
		VALUES (?, ?, ?, ?, ?)`),
		event.ID, event.Topic, event.WebhookID, event.Payload, event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record raw event: %w", err)
	}
	return nil
}

// GetRawEvent returns the event or nil when absent.
func (s *SQLStore) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	var e model.RawEvent
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, topic, webhook_id, payload, received_at FROM raw_events WHERE id = ?`), id,
	).Scan(&e.ID, &e.Topic, &e.WebhookID, &e.Payload, &e.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw event: %w", err)
	}
	return &e, nil
}

// ListRawEvents returns matching events oldest first.
func (s *SQLStore) ListRawEvents(ctx context.Context, filter model.RawEventFilter, limit, offset int) ([]model.RawEvent, int64, error) {
	var (
		where []string
		args  []any
	)
	if filter.Topic != "" {
		where = append(where, "topic = ?")
		args = append(args, filter.Topic)
	}
	if !filter.Since.IsZero() {
		where = append(where, "received_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		where = append(where, "received_at < ?")
		args = append(args, filter.Until.UTC())
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM raw_events"+clause), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count raw events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT id, topic, webhook_id, payload, received_at FROM raw_events"+clause+
			" ORDER BY received_at, id LIMIT ? OFFSET ?"), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list raw events: %w", err)
	}
	defer rows.Close()

	events := []model.RawEvent{}
	for rows.Next() {
		var e model.RawEvent
		if err := rows.Scan(&e.ID, &e.Topic, &e.WebhookID, &e.Payload, &e.ReceivedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan raw event: %w", err)
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// GetStats returns row counts per table plus pool statistics.
func (s *SQLStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["backend"] = s.dialect.name

	for _, table := range []string{"orders", "order_items", "products", "customers", "raw_events"} {
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}

	dbStats := s.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}
	return stats, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var (
	_ EntityStore        = (*SQLStore)(nil)
	_ RawEventRepository = (*SQLStore)(nil)
)
