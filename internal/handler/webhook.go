package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"shopsync-api/internal/model"
	"shopsync-api/internal/service"
	"shopsync-api/internal/webhook"
	"shopsync-api/pkg/apierror"
	"shopsync-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// Ingester processes one verified-or-not delivery.
type Ingester interface {
	Ingest(ctx context.Context, d model.Delivery) (*service.Result, error)
}

// WebhookOptions configures header names and limits for inbound deliveries.
type WebhookOptions struct {
	SignatureHeader string
	TopicHeader     string
	WebhookIDHeader string
	MaxBodyBytes    int64
	ProcessTimeout  time.Duration
}

// WebhookHandler receives platform deliveries.
type WebhookHandler struct {
	ingester Ingester
	opts     WebhookOptions
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(ingester Ingester, opts WebhookOptions) *WebhookHandler {
	if opts.SignatureHeader == "" {
		opts.SignatureHeader = "X-Shopify-Hmac-Sha256"
	}
	if opts.TopicHeader == "" {
		opts.TopicHeader = "X-Shopify-Topic"
	}
	if opts.WebhookIDHeader == "" {
		opts.WebhookIDHeader = "X-Shopify-Webhook-Id"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 25 * time.Second
	}
	return &WebhookHandler{ingester: ingester, opts: opts}
}

// Receive handles POST /webhooks/shopify and POST /webhooks/{resource}/{action}.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	topic := r.Header.Get(h.opts.TopicHeader)
	if resource := chi.URLParam(r, "resource"); resource != "" {
		topic = resource + "/" + chi.URLParam(r, "action")
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Printf("[WebhookHandler] Body over %d bytes rejected topic=%s", h.opts.MaxBodyBytes, topic)
			response.Error(w, apierror.PayloadTooLarge(h.opts.MaxBodyBytes))
			return
		}
		response.Error(w, apierror.BadRequest("failed to read request body"))
		return
	}

	// Once the body is read the delivery runs to completion even if the
	// sender disconnects, bounded by the process timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.ProcessTimeout)
	defer cancel()

	_, err = h.ingester.Ingest(ctx, model.Delivery{
		Topic:     topic,
		Body:      body,
		Signature: r.Header.Get(h.opts.SignatureHeader),
		WebhookID: r.Header.Get(h.opts.WebhookIDHeader),
	})
	if err != nil {
		response.Error(w, ingestAPIError(err))
		return
	}

	response.Ack(w)
}

// ingestAPIError maps a failure kind to the status the platform acts on.
func ingestAPIError(err error) *apierror.Error {
	switch {
	case errors.Is(err, service.ErrAuthentication):
		return apierror.Unauthorized("invalid webhook signature")
	case errors.Is(err, service.ErrValidation):
		apiErr := apierror.ValidationError("invalid payload")
		var verr *webhook.ValidationError
		if errors.As(err, &verr) {
			apiErr = apiErr.WithDetails(apierror.FieldError{Field: verr.Field, Message: verr.Message})
		}
		return apiErr
	case errors.Is(err, service.ErrStorage):
		return apierror.ServiceUnavailable("storage unavailable, retry later")
	case errors.Is(err, service.ErrEventNotFound):
		return apierror.NotFound("raw event not found")
	default:
		return apierror.InternalError("")
	}
}
