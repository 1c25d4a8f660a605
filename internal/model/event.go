package model

import "time"

// RawEvent is the verbatim record of one accepted delivery.
// Rows are append-only and never consulted by live queries.
type RawEvent struct {
	ID         string    `json:"id" bson:"_id"`
	Topic      string    `json:"topic" bson:"topic"`
	WebhookID  string    `json:"webhook_id,omitempty" bson:"webhook_id,omitempty"`
	Payload    []byte    `json:"payload,omitempty" bson:"payload"`
	ReceivedAt time.Time `json:"received_at" bson:"received_at"`
}

// RawEventFilter narrows a raw event listing.
type RawEventFilter struct {
	Topic string
	Since time.Time
	Until time.Time
}

// Delivery is one inbound webhook call as handed over by the HTTP layer.
type Delivery struct {
	Topic     string
	Body      []byte
	Signature string
	WebhookID string
}
