package repository

import (
	"context"

	"shopsync-api/internal/model"
)

// OrderMergeFunc folds a change into the currently stored order. It reports
// whether the stored item set must be replaced by merged.Items.
type OrderMergeFunc func(current model.Order, change *model.OrderChange) (merged model.Order, replaceItems bool)

// ProductMergeFunc folds a change into the currently stored product. When
// apply is false the stored row is left untouched.
type ProductMergeFunc func(current model.Product, change *model.ProductChange) (merged model.Product, apply bool)

// UpsertResult describes what an upsert did.
type UpsertResult struct {
	ID      int64
	Created bool
	Applied bool
}

// EntityStore persists the reconciled entity graph. Every mutating method is
// a single atomic unit keyed on the source_id uniqueness constraint.
type EntityStore interface {
	// UpsertOrder creates the order and its items if the source id is unseen,
	// otherwise locks the stored row and applies merge.
	UpsertOrder(ctx context.Context, change *model.OrderChange, merge OrderMergeFunc) (UpsertResult, error)

	// DeleteOrder removes the order and its items. Deleting an unknown
	// source id is not an error and reports false.
	DeleteOrder(ctx context.Context, sourceID int64) (bool, error)

	// UpsertProduct creates or merges a product.
	UpsertProduct(ctx context.Context, change *model.ProductChange, merge ProductMergeFunc) (UpsertResult, error)

	// UpsertCustomer creates or fills a customer. Empty fields never clear stored values.
	UpsertCustomer(ctx context.Context, customer *model.Customer) error

	GetOrder(ctx context.Context, sourceID int64) (*model.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]model.Order, int64, error)
	GetProduct(ctx context.Context, sourceID int64) (*model.Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]model.Product, int64, error)
	GetCustomer(ctx context.Context, sourceID int64) (*model.Customer, error)

	// GetStats returns row counts and backend details.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	Ping(ctx context.Context) error
	Close() error
}

// RawEventRepository is the append-only delivery log.
type RawEventRepository interface {
	// Record appends an event, assigning ID and ReceivedAt when unset.
	Record(ctx context.Context, event *model.RawEvent) error

	// GetRawEvent returns nil when the id is unknown.
	GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error)

	// ListRawEvents returns events oldest first with the total matching count.
	ListRawEvents(ctx context.Context, filter model.RawEventFilter, limit, offset int) ([]model.RawEvent, int64, error)

	Close() error
}
