package service

import (
	"context"
	"log"
	"time"

	"shopsync-api/internal/cache"
)

// DeliveryInbox remembers delivery ids that were reconciled successfully so
// platform redeliveries can skip the store. Reconciliation is idempotent on
// its own; a cache outage only costs the shortcut.
type DeliveryInbox struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewDeliveryInbox creates an inbox over c. A nil cache disables it.
func NewDeliveryInbox(c cache.Cache, ttl time.Duration) *DeliveryInbox {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &DeliveryInbox{cache: c, ttl: ttl}
}

func inboxKey(webhookID string) string {
	return "delivery:" + webhookID
}

// Seen reports whether webhookID was already processed.
func (i *DeliveryInbox) Seen(ctx context.Context, webhookID string) bool {
	if i == nil || i.cache == nil || webhookID == "" {
		return false
	}
	ok, err := i.cache.Exists(ctx, inboxKey(webhookID))
	if err != nil {
		log.Printf("[DeliveryInbox] Lookup failed for webhook_id=%s: %v", webhookID, err)
		return false
	}
	return ok
}

// MarkProcessed records webhookID as processed.
func (i *DeliveryInbox) MarkProcessed(ctx context.Context, webhookID string) {
	if i == nil || i.cache == nil || webhookID == "" {
		return
	}
	if err := i.cache.Set(ctx, inboxKey(webhookID), []byte("1"), i.ttl); err != nil {
		log.Printf("[DeliveryInbox] Failed to mark webhook_id=%s: %v", webhookID, err)
	}
}
