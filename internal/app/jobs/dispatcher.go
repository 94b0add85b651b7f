package jobs

import (
	"context"

	"noteflow/internal/domain/model"
)

// Dispatcher hands a job to the asynchronous execution facility. Enqueue
// returns once the job is accepted; it never waits for the run.
type Dispatcher interface {
	Enqueue(ctx context.Context, kind model.JobKind, id string) error
}
