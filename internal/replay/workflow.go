package replay

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultBatchSize = 100

// ReplayEventsWorkflow re-reconciles every raw event selected by req.
// Events are replayed one at a time in received order so per-entity ordering
// matches the original deliveries.
func ReplayEventsWorkflow(ctx workflow.Context, req ReplayRequest) (ReplayResult, error) {
	logger := workflow.GetLogger(ctx)

	if req.BatchSize <= 0 {
		req.BatchSize = defaultBatchSize
	}
	if req.Until.IsZero() {
		req.Until = workflow.Now(ctx)
	}

	retryPolicy := &temporal.RetryPolicy{
		InitialInterval:        1 * time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        30 * time.Second,
		MaximumAttempts:        5,
		NonRetryableErrorTypes: []string{"ValidationError"},
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         retryPolicy,
	})

	var result ReplayResult
	err := workflow.SetQueryHandler(ctx, "get-progress", func() (ReplayResult, error) {
		return result, nil
	})
	if err != nil {
		return result, err
	}

	logger.Info("Replay started", "since", req.Since, "until", req.Until, "topic", req.Topic)

	for offset := 0; ; offset += req.BatchSize {
		var ids []string
		if err := workflow.ExecuteActivity(ctx, "ListEventIDs", req, offset).Get(ctx, &ids); err != nil {
			return result, err
		}

		for _, id := range ids {
			var action string
			err := workflow.ExecuteActivity(ctx, "ReplayEvent", id).Get(ctx, &action)
			switch {
			case err == nil:
				result.Replayed++
			case isValidationError(err):
				result.Skipped++
			default:
				result.Failed++
				logger.Error("Event replay failed", "eventID", id, "error", err)
			}
		}

		if len(ids) < req.BatchSize {
			break
		}
	}

	logger.Info("Replay completed", "replayed", result.Replayed, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

func isValidationError(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == "ValidationError"
}
