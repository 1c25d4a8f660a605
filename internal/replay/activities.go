package replay

import (
	"context"
	"errors"

	"shopsync-api/internal/model"
	"shopsync-api/internal/repository"
	"shopsync-api/internal/service"

	"go.temporal.io/sdk/activity"
)

// Replayer re-reconciles one stored raw event.
type Replayer interface {
	Replay(ctx context.Context, eventID string) (*service.Result, error)
}

// Activities run against the same raw log and store as the API.
type Activities struct {
	RawLog   repository.RawEventRepository
	Replayer Replayer
}

// ListEventIDs returns one page of event ids matching req, oldest first.
func (a *Activities) ListEventIDs(ctx context.Context, req ReplayRequest, offset int) ([]string, error) {
	logger := activity.GetLogger(ctx)

	events, total, err := a.RawLog.ListRawEvents(ctx, model.RawEventFilter{
		Topic: req.Topic,
		Since: req.Since,
		Until: req.Until,
	}, req.BatchSize, offset)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	logger.Info("Listed raw events", "offset", offset, "count", len(ids), "total", total)
	return ids, nil
}

// ReplayEvent replays one event and returns the reconciler action.
func (a *Activities) ReplayEvent(ctx context.Context, eventID string) (string, error) {
	logger := activity.GetLogger(ctx)

	res, err := a.Replayer.Replay(ctx, eventID)
	switch {
	case err == nil:
		logger.Info("Replayed event", "eventID", eventID, "action", res.Outcome.Action, "sourceID", res.Outcome.SourceID)
		return res.Outcome.Action, nil
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrEventNotFound):
		logger.Warn("Event cannot be replayed", "eventID", eventID, "error", err)
		return "", &ValidationError{Msg: err.Error()}
	default:
		logger.Error("Replay failed", "eventID", eventID, "error", err)
		return "", err
	}
}
