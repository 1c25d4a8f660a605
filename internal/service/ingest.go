package service

import (
	"context"
	"log"

	"shopsync-api/internal/model"
	"shopsync-api/internal/repository"
	"shopsync-api/internal/webhook"
)

// Result describes how one delivery was handled.
type Result struct {
	EventID   string  `json:"event_id,omitempty"`
	Topic     string  `json:"topic"`
	Duplicate bool    `json:"duplicate,omitempty"`
	Outcome   Outcome `json:"outcome"`
}

// IngestService is the delivery pipeline: verify, record, classify, reconcile.
type IngestService struct {
	verifier   *webhook.Verifier
	rawLog     repository.RawEventRepository
	reconciler *Reconciler
	inbox      *DeliveryInbox
	counters   *Counters
}

// NewIngestService wires the pipeline. inbox may be nil.
func NewIngestService(
	verifier *webhook.Verifier,
	rawLog repository.RawEventRepository,
	reconciler *Reconciler,
	inbox *DeliveryInbox,
) *IngestService {
	return &IngestService{
		verifier:   verifier,
		rawLog:     rawLog,
		reconciler: reconciler,
		inbox:      inbox,
		counters:   &Counters{},
	}
}

// Counters exposes the delivery outcome counters.
func (s *IngestService) Counters() *Counters {
	return s.counters
}

// Ingest handles one delivery. The signature is checked over the exact wire
// bytes before anything is parsed or persisted.
func (s *IngestService) Ingest(ctx context.Context, d model.Delivery) (*Result, error) {
	topic := webhook.NormalizeTopic(d.Topic)

	if !s.verifier.Verify(d.Body, d.Signature) {
		err := &IngestError{Kind: ErrAuthentication, Topic: topic}
		s.fail(err, d.WebhookID)
		return nil, err
	}

	event := &model.RawEvent{
		Topic:     topic,
		WebhookID: d.WebhookID,
		Payload:   d.Body,
	}
	if err := s.rawLog.Record(ctx, event); err != nil {
		ierr := &IngestError{Kind: ErrStorage, Topic: topic, Err: err}
		s.fail(ierr, d.WebhookID)
		return nil, ierr
	}

	result := &Result{EventID: event.ID, Topic: topic}

	op := webhook.Classify(topic)
	if op == webhook.OpUnknown {
		s.counters.UnknownTopics.Add(1)
		s.counters.Accepted.Add(1)
		log.Printf("[Ingest] Unhandled topic=%s event_id=%s recorded without reconciliation", topic, event.ID)
		result.Outcome = Outcome{Operation: op.String(), Action: ActionNoop}
		return result, nil
	}

	if s.inbox.Seen(ctx, d.WebhookID) {
		s.counters.Duplicates.Add(1)
		s.counters.Accepted.Add(1)
		log.Printf("[Ingest] Duplicate delivery webhook_id=%s topic=%s skipped", d.WebhookID, topic)
		result.Duplicate = true
		result.Outcome = Outcome{Operation: op.String(), Action: ActionNoop}
		return result, nil
	}

	outcome, err := s.reconciler.Apply(ctx, topic, op, d.Body)
	if err != nil {
		s.fail(err, d.WebhookID)
		return nil, err
	}

	s.inbox.MarkProcessed(ctx, d.WebhookID)
	s.counters.Accepted.Add(1)
	result.Outcome = outcome
	return result, nil
}

// Replay re-reconciles a stored raw event. Its bytes were authenticated when
// first received, so no signature is checked.
func (s *IngestService) Replay(ctx context.Context, eventID string) (*Result, error) {
	event, err := s.rawLog.GetRawEvent(ctx, eventID)
	if err != nil {
		return nil, &IngestError{Kind: ErrStorage, Err: err}
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	op := webhook.Classify(event.Topic)
	outcome, err := s.reconciler.Apply(ctx, event.Topic, op, event.Payload)
	if err != nil {
		s.counters.ReplayFailures.Add(1)
		log.Printf("[Ingest] Replay failed event_id=%s kind=%s: %v", eventID, KindName(err), err)
		return nil, err
	}

	s.counters.Replayed.Add(1)
	log.Printf("[Ingest] Replayed event_id=%s topic=%s action=%s source_id=%d",
		eventID, event.Topic, outcome.Action, outcome.SourceID)
	return &Result{EventID: event.ID, Topic: event.Topic, Outcome: outcome}, nil
}

func (s *IngestService) fail(err error, webhookID string) {
	s.counters.recordFailure(err)
	log.Printf("[Ingest] Delivery rejected kind=%s webhook_id=%s: %v", KindName(err), webhookID, err)
}
