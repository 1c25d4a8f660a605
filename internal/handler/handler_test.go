package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shopsync-api/internal/model"
	"shopsync-api/internal/replay"
	"shopsync-api/internal/repository"
	"shopsync-api/internal/service"
	"shopsync-api/internal/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-secret"

type testEnv struct {
	mux    *chi.Mux
	store  *repository.SQLStore
	ingest *service.IngestService
}

func newTestEnv(t *testing.T, starter ReplayStarter) *testEnv {
	t.Helper()

	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "shopsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	verifier, err := webhook.NewVerifier(testSecret)
	require.NoError(t, err)

	reconciler := service.NewReconciler(store, service.ReconcilerConfig{Backoff: time.Millisecond})
	ingest := service.NewIngestService(verifier, store, reconciler, nil)

	wh := NewWebhookHandler(ingest, WebhookOptions{MaxBodyBytes: 4096})
	catalog := NewCatalogHandler(store)
	admin := NewAdminHandler(store, store, ingest, starter, ingest.Counters(), AdminOptions{StoreType: "sqlite"})

	mux := chi.NewRouter()
	mux.Post("/webhooks/shopify", wh.Receive)
	mux.Post("/webhooks/{resource}/{action}", wh.Receive)
	mux.Get("/orders", catalog.ListOrders)
	mux.Get("/orders/{source_id}", catalog.GetOrder)
	mux.Get("/products/{source_id}", catalog.GetProduct)
	mux.Get("/customers/{source_id}", catalog.GetCustomer)
	mux.Get("/admin/stats", admin.GetStats)
	mux.Get("/admin/events", admin.ListEvents)
	mux.Get("/admin/events/{id}", admin.GetEvent)
	mux.Post("/admin/events/{id}/replay", admin.ReplayEvent)
	mux.Post("/admin/replay", admin.StartReplay)

	return &testEnv{mux: mux, store: store, ingest: ingest}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func deliver(topic, body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(body))
	req.Header.Set("X-Shopify-Topic", topic)
	req.Header.Set("X-Shopify-Hmac-Sha256", signature)
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "missing error object in %s", rec.Body.String())
	return errObj["code"].(string)
}

const orderBody = `{"id":1001,"order_number":"#1001","financial_status":"pending","total_price":"19.98","line_items":[{"product_id":55,"title":"Widget","quantity":2,"price":"9.99"}]}`

func TestWebhook_AcceptsSignedDelivery(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(deliver("orders/create", orderBody, webhook.Sign(testSecret, []byte(orderBody))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/orders/1001", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "#1001", data["order_number"])
	assert.Len(t, data["items"], 1)
}

func TestWebhook_PathTopicWinsOverHeader(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders/create", strings.NewReader(orderBody))
	req.Header.Set("X-Shopify-Topic", "products/update")
	req.Header.Set("X-Shopify-Hmac-Sha256", webhook.Sign(testSecret, []byte(orderBody)))

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	order, err := env.store.GetOrder(context.Background(), 1001)
	require.NoError(t, err)
	require.NotNil(t, order)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, nil)

	tampered := strings.Replace(orderBody, "19.98", "0.01", 1)
	rec := env.do(deliver("orders/create", tampered, webhook.Sign(testSecret, []byte(orderBody))))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	_, total, err := env.store.ListRawEvents(context.Background(), model.RawEventFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	order, err := env.store.GetOrder(context.Background(), 1001)
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestWebhook_InvalidPayloadIsBadRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"order_number":"#1"}`
	rec := env.do(deliver("orders/create", body, webhook.Sign(testSecret, []byte(body))))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errObj := decodeBody(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	details := errObj["details"].([]interface{})
	require.Len(t, details, 1)
	assert.Equal(t, "id", details[0].(map[string]interface{})["field"])
}

func TestWebhook_UnknownTopicIsAcknowledged(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"id":9}`
	rec := env.do(deliver("customers/create", body, webhook.Sign(testSecret, []byte(body))))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_OversizedBody(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"id":1,"note":"` + strings.Repeat("x", 5000) + `"}`
	rec := env.do(deliver("orders/create", body, webhook.Sign(testSecret, []byte(body))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", errorCode(t, rec))
}

type fakeIngester struct {
	ctxErr      error
	hasDeadline bool
	got         model.Delivery
	err         error
}

func (f *fakeIngester) Ingest(ctx context.Context, d model.Delivery) (*service.Result, error) {
	f.ctxErr = ctx.Err()
	_, f.hasDeadline = ctx.Deadline()
	f.got = d
	if f.err != nil {
		return nil, f.err
	}
	return &service.Result{Topic: d.Topic}, nil
}

func TestWebhook_StorageFailureIsRetryable(t *testing.T) {
	ing := &fakeIngester{err: &service.IngestError{Kind: service.ErrStorage, Topic: "orders/create", Err: errors.New("disk I/O error")}}
	h := NewWebhookHandler(ing, WebhookOptions{})

	rec := httptest.NewRecorder()
	h.Receive(rec, deliver("orders/create", orderBody, "sig"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(t, rec))
}

func TestWebhook_ProcessingOutlivesClientDisconnect(t *testing.T) {
	ing := &fakeIngester{}
	h := NewWebhookHandler(ing, WebhookOptions{ProcessTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := deliver("orders/create", orderBody, "sig").WithContext(ctx)
	req.Header.Set("X-Shopify-Webhook-Id", "wh-1")

	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wh-1", ing.got.WebhookID)
	assert.Equal(t, "sig", ing.got.Signature)
	assert.Equal(t, []byte(orderBody), ing.got.Body)
	assert.NoError(t, ing.ctxErr)
	assert.True(t, ing.hasDeadline)
}

func TestCatalog_NotFoundAndBadID(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/orders/42", http.StatusNotFound},
		{"/products/42", http.StatusNotFound},
		{"/customers/42", http.StatusNotFound},
		{"/orders/abc", http.StatusBadRequest},
		{"/orders/-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCatalog_ListOrdersPagination(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{`{"id":1}`, `{"id":2}`, `{"id":3}`} {
		rec := env.do(deliver("orders/create", body, webhook.Sign(testSecret, []byte(body))))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/orders?page=2&limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, float64(2), meta["page"])
	assert.Equal(t, float64(2), meta["limit"])
	assert.Equal(t, float64(3), meta["total"])
	assert.Len(t, body["data"], 1)
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query               string
		page, limit, offset int
	}{
		{"", 1, 20, 0},
		{"page=3&limit=10", 3, 10, 20},
		{"page=0&limit=0", 1, 20, 0},
		{"page=x&limit=500", 1, 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			gotPage, gotLimit, gotOffset := parsePage(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil))
			assert.Equal(t, tt.page, gotPage)
			assert.Equal(t, tt.limit, gotLimit)
			assert.Equal(t, tt.offset, gotOffset)
		})
	}
}

func TestAdmin_EventsAndReplay(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(deliver("orders/create", orderBody, webhook.Sign(testSecret, []byte(orderBody))))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/admin/events?topic=orders/create", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)["data"].([]interface{})
	require.Len(t, list, 1)
	first := list[0].(map[string]interface{})
	assert.Equal(t, float64(len(orderBody)), first["payload_bytes"])
	id := first["id"].(string)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/admin/events/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)["data"].(map[string]interface{})["payload"].(map[string]interface{})
	assert.Equal(t, "#1001", payload["order_number"])

	rec = env.do(httptest.NewRequest(http.MethodPost, "/admin/events/"+id+"/replay", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), env.ingest.Counters().Replayed.Load())

	rec = env.do(httptest.NewRequest(http.MethodPost, "/admin/events/missing/replay", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/admin/events/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/admin/events?since=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_Stats(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "sqlite", data["store_type"])
	assert.Contains(t, data, "deliveries")
	assert.Equal(t, "connected", data["store"].(map[string]interface{})["status"])
}

type fakeStarter struct {
	req replay.ReplayRequest
}

func (f *fakeStarter) Start(_ context.Context, req replay.ReplayRequest) (string, string, error) {
	f.req = req
	return "replay-events-1", "run-1", nil
}

func TestAdmin_StartReplay(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(httptest.NewRequest(http.MethodPost, "/admin/replay", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("started", func(t *testing.T) {
		starter := &fakeStarter{}
		env := newTestEnv(t, starter)

		body := `{"since":"2024-03-01T00:00:00Z","until":"2024-03-02T00:00:00Z","topic":"orders/update"}`
		rec := env.do(httptest.NewRequest(http.MethodPost, "/admin/replay", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		data := decodeBody(t, rec)["data"].(map[string]interface{})
		assert.Equal(t, "replay-events-1", data["workflow_id"])
		assert.Equal(t, "orders/update", starter.req.Topic)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), starter.req.Since)
	})

	t.Run("inverted window", func(t *testing.T) {
		env := newTestEnv(t, &fakeStarter{})
		body := `{"since":"2024-03-02T00:00:00Z","until":"2024-03-01T00:00:00Z"}`
		rec := env.do(httptest.NewRequest(http.MethodPost, "/admin/replay", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealth_Ready(t *testing.T) {
	rec := httptest.NewRecorder()
	New(stubPinger{}, "test").Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	New(stubPinger{err: errors.New("down")}, "test").Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["data"].(map[string]interface{})["ready"])
}

func TestHealth_Status(t *testing.T) {
	rec := httptest.NewRecorder()
	New(nil, "test").Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, ServiceName, data["service"])
	assert.Equal(t, "ok", data["status"])
}
