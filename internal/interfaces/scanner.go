package interfaces

import (
	"context"

	"github.com/ternarybob/seoscan/internal/models"
)

// JobExecutor runs one scan job from `running` to a terminal state.
// Cancellation via ctx is absorbed (the job is marked failed with the
// cancellation message); any returned error means the job infrastructure
// failed and the scheduler records it.
type JobExecutor interface {
	Execute(ctx context.Context, job *models.Job) error
}

// SchedulerState is a point-in-time snapshot of the worker pool.
// CancelRequestedIDs lists running jobs whose cancellation was requested
// but which have not reached a terminal state yet.
type SchedulerState struct {
	QueuedJobIDs       []string `json:"queuedJobIds"`
	RunningJobIDs      []string `json:"runningJobIds"`
	CancelRequestedIDs []string `json:"cancelRequested"`
	WorkerCount        int      `json:"workerCount"`
	Accepting          bool     `json:"accepting"`
}

// SchedulerService owns the bounded scan worker pool
type SchedulerService interface {
	// Start recovers unfinished jobs from storage and begins draining the
	// queue with the configured number of workers.
	Start(ctx context.Context) error

	// Enqueue adds a pending job to the queue. Enqueueing an already
	// queued or running job is a no-op.
	Enqueue(jobID string) error

	// Cancel removes a queued job or signals a running one to stop.
	// Returns false if the job is neither queued nor running.
	Cancel(jobID string) bool

	// IsActive reports whether the job is queued or currently running
	IsActive(jobID string) bool

	GetState() SchedulerState

	// Stop stops intake, cancels running jobs and waits for workers to exit
	Stop(ctx context.Context) error
}
