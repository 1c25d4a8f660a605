package router

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shopsync-api/internal/handler"
	"shopsync-api/internal/middleware"
	"shopsync-api/internal/repository"
	"shopsync-api/internal/service"
	"shopsync-api/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	verifier, err := webhook.NewVerifier("router-secret")
	require.NoError(t, err)
	ingest := service.NewIngestService(verifier, store,
		service.NewReconciler(store, service.ReconcilerConfig{Backoff: time.Millisecond}), nil)

	return New(Config{
		Handler:        handler.New(store, "test"),
		WebhookHandler: handler.NewWebhookHandler(ingest, handler.WebhookOptions{}),
		CatalogHandler: handler.NewCatalogHandler(store),
		AdminHandler:   handler.NewAdminHandler(store, store, ingest, nil, ingest.Counters(), handler.AdminOptions{}),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: []string{"admin-key"}}),
	})
}

func TestRouter_Access(t *testing.T) {
	r := newTestRouter(t)
	body := `{"id":1001,"order_number":"#1001"}`

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		header map[string]string
		want   int
	}{
		{name: "status is public", method: http.MethodGet, path: "/api/status", want: http.StatusOK},
		{name: "ready is public", method: http.MethodGet, path: "/api/v1/ready", want: http.StatusOK},
		{
			name: "webhook needs no api key", method: http.MethodPost, path: "/webhooks/orders/create", body: body,
			header: map[string]string{"X-Shopify-Hmac-Sha256": webhook.Sign("router-secret", []byte(body))},
			want:   http.StatusOK,
		},
		{
			name: "webhook without signature", method: http.MethodPost, path: "/webhooks/shopify", body: body,
			header: map[string]string{"X-Shopify-Topic": "orders/create"},
			want:   http.StatusUnauthorized,
		},
		{name: "orders need api key", method: http.MethodGet, path: "/api/v1/orders", want: http.StatusUnauthorized},
		{
			name: "orders with api key", method: http.MethodGet, path: "/api/v1/orders",
			header: map[string]string{"X-API-Key": "admin-key"}, want: http.StatusOK,
		},
		{
			name: "admin with bearer", method: http.MethodGet, path: "/api/v1/admin/stats",
			header: map[string]string{"Authorization": "Bearer admin-key"}, want: http.StatusOK,
		},
		{
			name: "admin with wrong key", method: http.MethodGet, path: "/api/v1/admin/events",
			header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}
