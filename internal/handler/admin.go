package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"time"

	"shopsync-api/internal/model"
	"shopsync-api/internal/replay"
	"shopsync-api/internal/repository"
	"shopsync-api/internal/service"
	"shopsync-api/pkg/apierror"
	"shopsync-api/pkg/response"
	"shopsync-api/pkg/uid"

	"github.com/go-chi/chi/v5"
)

// EventReplayer re-reconciles one stored raw event.
type EventReplayer interface {
	Replay(ctx context.Context, eventID string) (*service.Result, error)
}

// ReplayStarter launches a background replay over a time window.
type ReplayStarter interface {
	Start(ctx context.Context, req replay.ReplayRequest) (workflowID, runID string, err error)
}

// AdminOptions names the configured backends for the stats endpoint.
type AdminOptions struct {
	StoreType  string
	RawLogType string
	CacheType  string
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	store     repository.EntityStore
	rawLog    repository.RawEventRepository
	replayer  EventReplayer
	starter   ReplayStarter
	counters  *service.Counters
	opts      AdminOptions
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. starter may be nil when
// background replay is not configured.
func NewAdminHandler(
	store repository.EntityStore,
	rawLog repository.RawEventRepository,
	replayer EventReplayer,
	starter ReplayStarter,
	counters *service.Counters,
	opts AdminOptions,
) *AdminHandler {
	if counters == nil {
		counters = &service.Counters{}
	}
	return &AdminHandler{
		store:     store,
		rawLog:    rawLog,
		replayer:  replayer,
		starter:   starter,
		counters:  counters,
		opts:      opts,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["store_type"] = h.opts.StoreType
	stats["raw_log_type"] = h.opts.RawLogType
	stats["cache_type"] = h.opts.CacheType
	stats["deliveries"] = h.counters.Snapshot()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.store != nil {
		storeStats, err := h.store.GetStats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	if h.rawLog != nil {
		_, total, err := h.rawLog.ListRawEvents(ctx, model.RawEventFilter{}, 1, 0)
		if err == nil {
			stats["raw_log"] = map[string]interface{}{"status": "connected", "events": total}
		} else {
			stats["raw_log"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// rawEventSummary is the listing shape of a raw event.
type rawEventSummary struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	WebhookID    string    `json:"webhook_id,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
	PayloadBytes int       `json:"payload_bytes"`
}

// rawEventDetail embeds the payload as JSON when it parses, as a string otherwise.
type rawEventDetail struct {
	rawEventSummary
	Payload interface{} `json:"payload"`
}

func summarize(e model.RawEvent) rawEventSummary {
	return rawEventSummary{
		ID:           e.ID,
		Topic:        e.Topic,
		WebhookID:    e.WebhookID,
		ReceivedAt:   e.ReceivedAt,
		PayloadBytes: len(e.Payload),
	}
}

// ListEvents handles GET /api/v1/admin/events
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r)

	filter, apiErr := parseEventFilter(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	events, total, err := h.rawLog.ListRawEvents(r.Context(), filter, limit, offset)
	if err != nil {
		log.Printf("[AdminHandler] ListRawEvents failed: %v", err)
		response.Error(w, apierror.ServiceUnavailable("failed to list raw events"))
		return
	}

	items := make([]rawEventSummary, len(events))
	for i, e := range events {
		items[i] = summarize(e)
	}

	response.JSONWithMeta(w, http.StatusOK, items, page, limit, total)
}

// eventIDParam reads {id}; anything that is not a UUID cannot name a raw event.
func eventIDParam(r *http.Request) (string, bool) {
	return uid.Normalize(chi.URLParam(r, "id"))
}

// GetEvent handles GET /api/v1/admin/events/{id}
func (h *AdminHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(r)
	if !ok {
		response.Error(w, apierror.NotFound("raw event not found"))
		return
	}

	event, err := h.rawLog.GetRawEvent(r.Context(), id)
	if err != nil {
		log.Printf("[AdminHandler] GetRawEvent %s failed: %v", id, err)
		response.Error(w, apierror.ServiceUnavailable("failed to load raw event"))
		return
	}
	if event == nil {
		response.Error(w, apierror.NotFound("raw event not found"))
		return
	}

	detail := rawEventDetail{rawEventSummary: summarize(*event)}
	if json.Valid(event.Payload) {
		detail.Payload = json.RawMessage(event.Payload)
	} else {
		detail.Payload = string(event.Payload)
	}

	response.OK(w, detail)
}

// ReplayEvent handles POST /api/v1/admin/events/{id}/replay
func (h *AdminHandler) ReplayEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(r)
	if !ok {
		response.Error(w, apierror.NotFound("raw event not found"))
		return
	}

	result, err := h.replayer.Replay(r.Context(), id)
	if err != nil {
		response.Error(w, ingestAPIError(err))
		return
	}

	response.OK(w, result)
}

// StartReplay handles POST /api/v1/admin/replay
func (h *AdminHandler) StartReplay(w http.ResponseWriter, r *http.Request) {
	if h.starter == nil {
		response.Error(w, apierror.ServiceUnavailable("background replay is not configured"))
		return
	}

	var req replay.ReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if !req.Until.IsZero() && !req.Until.After(req.Since) {
		response.Error(w, apierror.ValidationError("invalid replay window",
			apierror.FieldError{Field: "until", Message: "must be after since"}))
		return
	}
	if req.BatchSize < 0 {
		response.Error(w, apierror.ValidationError("invalid batch size",
			apierror.FieldError{Field: "batch_size", Message: "must not be negative"}))
		return
	}

	workflowID, runID, err := h.starter.Start(r.Context(), req)
	if err != nil {
		log.Printf("[AdminHandler] StartReplay failed: %v", err)
		response.Error(w, apierror.ServiceUnavailable("failed to start replay"))
		return
	}

	log.Printf("[AdminHandler] Replay started workflow=%s run=%s topic=%q", workflowID, runID, req.Topic)
	response.Accepted(w, map[string]string{
		"workflow_id": workflowID,
		"run_id":      runID,
	})
}

func parseEventFilter(r *http.Request) (model.RawEventFilter, *apierror.Error) {
	q := r.URL.Query()
	filter := model.RawEventFilter{Topic: q.Get("topic")}

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apierror.ValidationError("invalid time filter",
				apierror.FieldError{Field: p.name, Message: "must be RFC3339"})
		}
		*p.dst = t
	}

	return filter, nil
}
