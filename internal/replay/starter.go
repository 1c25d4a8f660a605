package replay

import (
	"context"
	"fmt"

	"shopsync-api/pkg/uid"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Starter launches replay workflows from the API process.
type Starter struct {
	client    client.Client
	taskQueue string
}

// NewStarter creates a starter on taskQueue.
func NewStarter(c client.Client, taskQueue string) *Starter {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Starter{client: c, taskQueue: taskQueue}
}

// Start begins a ReplayEventsWorkflow and returns its workflow and run ids.
func (s *Starter) Start(ctx context.Context, req ReplayRequest) (string, string, error) {
	opts := client.StartWorkflowOptions{
		ID:        "replay-events-" + uid.New(),
		TaskQueue: s.taskQueue,
	}

	we, err := s.client.ExecuteWorkflow(ctx, opts, ReplayEventsWorkflow, req)
	if err != nil {
		return "", "", fmt.Errorf("failed to start replay workflow: %w", err)
	}
	return we.GetID(), we.GetRunID(), nil
}

// Register adds the workflow and activities to a worker.
func Register(w worker.Registry, acts *Activities) {
	w.RegisterWorkflow(ReplayEventsWorkflow)
	w.RegisterActivity(acts)
}
