package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"shopsync-api/internal/repository"
	"shopsync-api/internal/webhook"
)

// Reconciler outcome actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionStale   = "stale"
	ActionNoop    = "noop"
)

// Outcome reports what reconciling one payload did.
type Outcome struct {
	Operation string `json:"operation"`
	SourceID  int64  `json:"source_id,omitempty"`
	Action    string `json:"action"`
}

// ReconcilerConfig bounds the retry of transient storage conflicts.
type ReconcilerConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Reconciler applies decoded payloads to the entity store. All concurrency
// control lives in the store's atomic upsert and delete primitives.
type Reconciler struct {
	store       repository.EntityStore
	maxAttempts int
	backoff     time.Duration
}

// NewReconciler creates a reconciler over store.
func NewReconciler(store repository.EntityStore, cfg ReconcilerConfig) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 50 * time.Millisecond
	}
	return &Reconciler{
		store:       store,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Apply decodes body for op and reconciles it. Unknown operations are a no-op.
// Errors are *IngestError of kind ErrValidation or ErrStorage.
func (r *Reconciler) Apply(ctx context.Context, topic string, op webhook.Operation, body []byte) (Outcome, error) {
	switch op {
	case webhook.OpOrderCreate, webhook.OpOrderUpdate:
		return r.upsertOrder(ctx, topic, op, body)
	case webhook.OpOrderDelete:
		return r.deleteOrder(ctx, topic, op, body)
	case webhook.OpProductUpdate:
		return r.upsertProduct(ctx, topic, op, body)
	default:
		return Outcome{Operation: op.String(), Action: ActionNoop}, nil
	}
}

func (r *Reconciler) upsertOrder(ctx context.Context, topic string, op webhook.Operation, body []byte) (Outcome, error) {
	change, err := webhook.DecodeOrder(body)
	if err != nil {
		return Outcome{}, &IngestError{Kind: ErrValidation, Topic: topic, Err: err}
	}
	out := Outcome{Operation: op.String(), SourceID: change.SourceID}

	// The customer row is settled first in its own statement so the order
	// transaction never waits on a customer lock.
	if change.Customer != nil {
		err := r.withRetry(ctx, func() error {
			return r.store.UpsertCustomer(ctx, change.Customer)
		})
		if err != nil {
			return out, r.storageError(topic, change.SourceID, err)
		}
	}

	var res repository.UpsertResult
	err = r.withRetry(ctx, func() error {
		var err error
		res, err = r.store.UpsertOrder(ctx, change, mergeOrder)
		return err
	})
	if err != nil {
		return out, r.storageError(topic, change.SourceID, err)
	}

	out.Action = ActionUpdated
	if res.Created {
		out.Action = ActionCreated
	}
	return out, nil
}

func (r *Reconciler) deleteOrder(ctx context.Context, topic string, op webhook.Operation, body []byte) (Outcome, error) {
	sourceID, err := webhook.DecodeOrderDelete(body)
	if err != nil {
		return Outcome{}, &IngestError{Kind: ErrValidation, Topic: topic, Err: err}
	}
	out := Outcome{Operation: op.String(), SourceID: sourceID}

	var deleted bool
	err = r.withRetry(ctx, func() error {
		var err error
		deleted, err = r.store.DeleteOrder(ctx, sourceID)
		return err
	})
	if err != nil {
		return out, r.storageError(topic, sourceID, err)
	}

	out.Action = ActionNoop
	if deleted {
		out.Action = ActionDeleted
	}
	return out, nil
}

func (r *Reconciler) upsertProduct(ctx context.Context, topic string, op webhook.Operation, body []byte) (Outcome, error) {
	change, err := webhook.DecodeProduct(body)
	if err != nil {
		return Outcome{}, &IngestError{Kind: ErrValidation, Topic: topic, Err: err}
	}
	out := Outcome{Operation: op.String(), SourceID: change.SourceID}

	var res repository.UpsertResult
	err = r.withRetry(ctx, func() error {
		var err error
		res, err = r.store.UpsertProduct(ctx, change, mergeProduct)
		return err
	})
	if err != nil {
		return out, r.storageError(topic, change.SourceID, err)
	}

	switch {
	case res.Created:
		out.Action = ActionCreated
	case res.Applied:
		out.Action = ActionUpdated
	default:
		out.Action = ActionStale
		log.Printf("[Reconciler] Discarded stale product update source_id=%d", change.SourceID)
	}
	return out, nil
}

// withRetry runs fn until it succeeds, fails permanently, or the attempt
// budget is spent. Only errors the repository classifies as retryable loop.
func (r *Reconciler) withRetry(ctx context.Context, fn func() error) error {
	delay := r.backoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !repository.IsRetryable(err) || attempt >= r.maxAttempts {
			return err
		}

		log.Printf("[Reconciler] Retryable storage error (attempt %d/%d): %v", attempt, r.maxAttempts, err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		}
		delay *= 2
	}
}

func (r *Reconciler) storageError(topic string, sourceID int64, err error) error {
	return &IngestError{Kind: ErrStorage, Topic: topic, SourceID: sourceID, Err: fmt.Errorf("reconcile: %w", err)}
}
