package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"shopsync-api/internal/model"
	"shopsync-api/pkg/uid"
)

// MySQLRawEventRepository implements RawEventRepository using MySQL.
type MySQLRawEventRepository struct {
	db *sql.DB
}

// NewMySQLRawEventRepository connects to MySQL and ensures the raw_events table exists.
// dsn must enable parseTime, e.g. "user:pass@tcp(host:3306)/shopsync?parseTime=true".
func NewMySQLRawEventRepository(dsn string) (*MySQLRawEventRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS raw_events (
		id CHAR(36) NOT NULL PRIMARY KEY,
		topic VARCHAR(128) NOT NULL,
		webhook_id VARCHAR(128) NOT NULL DEFAULT '',
		payload LONGBLOB NOT NULL,
		received_at DATETIME(6) NOT NULL,
		INDEX idx_raw_events_received_at (received_at),
		INDEX idx_raw_events_topic (topic)
	)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create raw_events table: %w", err)
	}

	log.Println("[MySQLRawEventRepository] Initialized")
	return &MySQLRawEventRepository{db: db}, nil
}

// Record appends a raw event.
func (r *MySQLRawEventRepository) Record(ctx context.Context, event *model.RawEvent) error {
	if event.ID == "" {
		event.ID = uid.New()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO raw_events (id, topic, webhook_id, payload, received_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.Topic, event.WebhookID, event.Payload, event.ReceivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record raw event: %w", err)
	}
	return nil
}

// GetRawEvent returns the event or nil when absent.
func (r *MySQLRawEventRepository) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	var e model.RawEvent
	err := r.db.QueryRowContext(ctx,
		`SELECT id, topic, webhook_id, payload, received_at FROM raw_events WHERE id = ?`, id,
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
func (r *MySQLRawEventRepository) ListRawEvents(ctx context.Context, filter model.RawEventFilter, limit, offset int) ([]model.RawEvent, int64, error) {
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
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_events"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count raw events: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, topic, webhook_id, payload, received_at FROM raw_events"+clause+
			" ORDER BY received_at, id LIMIT ? OFFSET ?", append(args, limit, offset)...)
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

// Close closes the database connection pool.
func (r *MySQLRawEventRepository) Close() error {
	return r.db.Close()
}

var _ RawEventRepository = (*MySQLRawEventRepository)(nil)
