package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shopsync-api/internal/repository"
	"shopsync-api/internal/webhook"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "shopsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestReconciler(t *testing.T) (*Reconciler, *repository.SQLStore) {
	store := newTestStore(t)
	return NewReconciler(store, ReconcilerConfig{MaxAttempts: 3, Backoff: time.Millisecond}), store
}

const order1001 = `{"id":1001,"order_number":"#1001","financial_status":"pending","line_items":[{"product_id":55,"variant_id":77,"title":"Widget","quantity":2,"price":"9.99"}]}`

func TestReconciler_OrderCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReconciler(t)

	out, err := r.Apply(ctx, "orders/create", webhook.OpOrderCreate, []byte(order1001))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, int64(1001), out.SourceID)

	out, err = r.Apply(ctx, "orders/create", webhook.OpOrderCreate, []byte(order1001))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, out.Action)

	orders, total, err := store.ListOrders(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, 2, orders[0].Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("9.99").Equal(orders[0].Items[0].UnitPrice))
	assert.Equal(t, "pending", orders[0].FinancialStatus)
}

func TestReconciler_OutOfOrderConvergence(t *testing.T) {
	update := []byte(`{"id":7,"financial_status":"paid","updated_at":"2024-03-01T10:05:00Z"}`)
	create := []byte(`{"id":7,"financial_status":"pending","updated_at":"2024-03-01T10:00:00Z","line_items":[{"title":"A","quantity":1,"price":"5.00"}]}`)

	type step struct {
		op   webhook.Operation
		body []byte
	}
	orders := map[string][]step{
		"create then update": {{webhook.OpOrderCreate, create}, {webhook.OpOrderUpdate, update}},
		"update then create": {{webhook.OpOrderUpdate, update}, {webhook.OpOrderCreate, create}},
	}

	for name, steps := range orders {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r, store := newTestReconciler(t)

			for _, s := range steps {
				_, err := r.Apply(ctx, "orders/x", s.op, s.body)
				require.NoError(t, err)
			}

			got, err := store.GetOrder(ctx, 7)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "paid", got.FinancialStatus)
			require.Len(t, got.Items, 1)
			assert.Equal(t, "A", got.Items[0].Title)
		})
	}
}

func TestReconciler_UpdateReplacesItems(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReconciler(t)

	_, err := r.Apply(ctx, "orders/create", webhook.OpOrderCreate, []byte(order1001))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = r.Apply(ctx, "orders/update", webhook.OpOrderUpdate,
			[]byte(`{"id":1001,"line_items":[{"title":"Widget","quantity":3,"price":"9.99"},{"title":"Gadget","quantity":1,"price":"1.00"}]}`))
		require.NoError(t, err)
	}

	got, err := store.GetOrder(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.Equal(t, "#1001", got.OrderNumber)
}

func TestReconciler_ConcurrentDuplicateCreates(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReconciler(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Apply(ctx, "orders/create", webhook.OpOrderCreate, []byte(order1001))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	_, total, err := store.ListOrders(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["order_items"])
}

func TestReconciler_DeleteBeforeCreate(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReconciler(t)

	out, err := r.Apply(ctx, "orders/delete", webhook.OpOrderDelete, []byte(`{"id":99}`))
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, out.Action)

	_, total, err := store.ListOrders(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestReconciler_DeleteRemovesOrderAndItems(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReconciler(t)

	_, err := r.Apply(ctx, "orders/create", webhook.OpOrderCreate, []byte(order1001))
	require.NoError(t, err)

	out, err := r.Apply(ctx, "orders/delete", webhook.OpOrderDelete, []byte(`{"id":1001}`))
	require.NoError(t, err)
	assert.Equal(t, ActionDeleted, out.Action)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats["orders"])
	assert.Equal(t, int64(0), stats["order_items"])
}

func TestReconciler_StaleProductUpdate(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReconciler(t)

	out, err := r.Apply(ctx, "products/update", webhook.OpProductUpdate,
		[]byte(`{"id":5,"title":"Widget v2","variants":[{"price":"12.00"}],"updated_at":"2024-02-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)

	out, err = r.Apply(ctx, "products/update", webhook.OpProductUpdate,
		[]byte(`{"id":5,"title":"Widget v1","variants":[{"price":"10.00"}],"updated_at":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionStale, out.Action)

	got, err := store.GetProduct(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", got.Title)
	assert.True(t, decimal.RequireFromString("12").Equal(got.Price))
}

func TestReconciler_CustomerUpsertedWithOrder(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReconciler(t)

	_, err := r.Apply(ctx, "orders/create", webhook.OpOrderCreate,
		[]byte(`{"id":1,"email":"ada@example.com","customer":{"id":42,"first_name":"Ada"}}`))
	require.NoError(t, err)
	_, err = r.Apply(ctx, "orders/update", webhook.OpOrderUpdate,
		[]byte(`{"id":1,"customer":{"id":42,"last_name":"Lovelace"}}`))
	require.NoError(t, err)

	c, err := store.GetCustomer(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "ada@example.com", c.Email)
	assert.Equal(t, "Ada", c.FirstName)
	assert.Equal(t, "Lovelace", c.LastName)
}

func TestReconciler_ValidationFailure(t *testing.T) {
	r, _ := newTestReconciler(t)

	_, err := r.Apply(context.Background(), "orders/create", webhook.OpOrderCreate, []byte(`{"order_number":"#1"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var verr *webhook.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReconciler_UnknownIsNoop(t *testing.T) {
	r, _ := newTestReconciler(t)

	out, err := r.Apply(context.Background(), "customers/create", webhook.OpUnknown, []byte(`not json`))
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, out.Action)
}

// flakyStore fails DeleteOrder with a serialization error a fixed number of times.
type flakyStore struct {
	repository.EntityStore
	failures int
	calls    int
}

func (f *flakyStore) DeleteOrder(ctx context.Context, sourceID int64) (bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return false, fmt.Errorf("failed to lock order %d: %w", sourceID, &pq.Error{Code: "40001"})
	}
	return true, nil
}

func TestReconciler_RetriesTransientStorageErrors(t *testing.T) {
	store := &flakyStore{failures: 2}
	r := NewReconciler(store, ReconcilerConfig{MaxAttempts: 3, Backoff: time.Millisecond})

	out, err := r.Apply(context.Background(), "orders/delete", webhook.OpOrderDelete, []byte(`{"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, ActionDeleted, out.Action)
	assert.Equal(t, 3, store.calls)
}

func TestReconciler_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &flakyStore{failures: 5}
	r := NewReconciler(store, ReconcilerConfig{MaxAttempts: 3, Backoff: time.Millisecond})

	_, err := r.Apply(context.Background(), "orders/delete", webhook.OpOrderDelete, []byte(`{"id":1}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 3, store.calls)

	var ierr *IngestError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, int64(1), ierr.SourceID)
}
