package replay

import "time"

// DefaultTaskQueue is the task queue used when none is configured.
const DefaultTaskQueue = "shopsync-replay"

// ReplayRequest selects the raw events to replay: received in [Since, Until),
// optionally restricted to one topic. A zero Until means the workflow start.
type ReplayRequest struct {
	Since     time.Time `json:"since"`
	Until     time.Time `json:"until"`
	Topic     string    `json:"topic,omitempty"`
	BatchSize int       `json:"batch_size,omitempty"`
}

// ReplayResult counts what happened to each selected event.
type ReplayResult struct {
	Replayed int `json:"replayed"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ValidationError marks an event that can never reconcile. It is listed in
// the activity retry policy's non-retryable types.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}
