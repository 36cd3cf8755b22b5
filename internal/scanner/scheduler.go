package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// Scheduler is the single-process bounded worker pool over scan jobs. The
// queue, the enqueued set and the running set are all guarded by one mutex;
// durable state lives in job rows so a restart recovers unfinished work.
type Scheduler struct {
	storage  interfaces.StorageManager
	events   interfaces.TaskEventService
	executor interfaces.JobExecutor
	logger   arbor.ILogger

	concurrency int
	staleAfter  time.Duration
	sweeper     *cron.Cron

	mu              sync.Mutex
	queue           []string
	enqueued        map[string]struct{}
	running         map[string]context.CancelFunc
	cancelRequested map[string]struct{}
	started         bool
	accepting  bool
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewScheduler builds the scheduler from the scheduler configuration
func NewScheduler(storage interfaces.StorageManager, events interfaces.TaskEventService, executor interfaces.JobExecutor, config common.SchedulerConfig, logger arbor.ILogger) *Scheduler {
	staleAfter, err := time.ParseDuration(config.StaleAfter)
	if err != nil || staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}

	s := &Scheduler{
		storage:     storage,
		events:      events,
		executor:    executor,
		logger:      logger,
		concurrency: config.MaxConcurrency,
		staleAfter:  staleAfter,
		enqueued:        make(map[string]struct{}),
		running:         make(map[string]context.CancelFunc),
		cancelRequested: make(map[string]struct{}),
	}

	s.sweeper = cron.New(cron.WithSeconds())
	if _, err := s.sweeper.AddFunc(config.SweepSchedule, s.sweepStale); err != nil {
		logger.Warn().Err(err).
			Str("schedule", config.SweepSchedule).
			Msg("Invalid sweep schedule, stale-job sweep disabled")
	}

	return s
}

var _ interfaces.SchedulerService = (*Scheduler)(nil)

// Start recovers every pending or running job from storage, oldest first,
// and begins draining. Idempotent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.accepting = true
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	jobs, err := s.storage.JobStorage().GetResumableJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load resumable jobs: %w", err)
	}

	s.mu.Lock()
	for _, job := range jobs {
		s.enqueueLocked(job.ID)
	}
	s.logger.Info().
		Int("recovered", len(jobs)).
		Int("concurrency", s.concurrency).
		Msg("Scheduler started")
	s.drainLocked()
	s.mu.Unlock()

	s.sweeper.Start()
	return nil
}

// Enqueue queues a job for execution. A job already queued or running is
// left alone.
func (s *Scheduler) Enqueue(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || !s.accepting {
		return fmt.Errorf("scheduler is not accepting jobs")
	}
	if s.isActiveLocked(jobID) {
		return nil
	}
	s.enqueueLocked(jobID)
	s.recordEvent(jobID, models.TaskEventQueued, nil)
	s.drainLocked()
	return nil
}

// Cancel removes a queued job or signals a running one. A queued job is
// marked failed immediately since no executor will ever touch it.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	if _, ok := s.enqueued[jobID]; ok {
		delete(s.enqueued, jobID)
		for i, queued := range s.queue {
			if queued == jobID {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		s.markQueuedJobCancelled(jobID)
		return true
	}
	if cancel, ok := s.running[jobID]; ok {
		s.cancelRequested[jobID] = struct{}{}
		s.mu.Unlock()
		s.logger.Info().Str("job_id", jobID).Msg("Cancellation requested for running job")
		cancel()
		return true
	}
	s.mu.Unlock()
	return false
}

// IsActive reports whether the job is queued or running
func (s *Scheduler) IsActive(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isActiveLocked(jobID)
}

// GetState snapshots the queue and the running set
func (s *Scheduler) GetState() interfaces.SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := interfaces.SchedulerState{
		QueuedJobIDs:       append([]string{}, s.queue...),
		RunningJobIDs:      make([]string, 0, len(s.running)),
		CancelRequestedIDs: make([]string, 0, len(s.cancelRequested)),
		WorkerCount:        s.concurrency,
		Accepting:          s.accepting,
	}
	for jobID := range s.running {
		state.RunningJobIDs = append(state.RunningJobIDs, jobID)
	}
	for jobID := range s.cancelRequested {
		state.CancelRequestedIDs = append(state.CancelRequestedIDs, jobID)
	}
	return state
}

// Stop halts intake, cancels running jobs and waits for workers to finish
// or the context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.accepting = false
	if s.baseCancel != nil {
		s.baseCancel()
	}
	s.mu.Unlock()

	s.sweeper.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop timed out: %w", ctx.Err())
	}
}

func (s *Scheduler) isActiveLocked(jobID string) bool {
	if _, ok := s.enqueued[jobID]; ok {
		return true
	}
	_, ok := s.running[jobID]
	return ok
}

func (s *Scheduler) enqueueLocked(jobID string) {
	s.queue = append(s.queue, jobID)
	s.enqueued[jobID] = struct{}{}
}

// drainLocked starts workers while capacity and queued jobs remain.
// Must be called with s.mu held.
func (s *Scheduler) drainLocked() {
	for len(s.running) < s.concurrency && len(s.queue) > 0 {
		jobID := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.enqueued, jobID)

		jobCtx, cancel := context.WithCancel(s.baseCtx)
		s.running[jobID] = cancel
		s.wg.Add(1)
		common.SafeGo(s.logger, "scan-job-"+jobID, func() {
			defer s.wg.Done()
			s.runJob(jobCtx, jobID)

			s.mu.Lock()
			delete(s.running, jobID)
			delete(s.cancelRequested, jobID)
			s.drainLocked()
			s.mu.Unlock()
			cancel()
		})
	}
}

func (s *Scheduler) runJob(ctx context.Context, jobID string) {
	job, err := s.storage.JobStorage().GetJob(context.Background(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load queued job")
		return
	}
	if job.IsTerminal() {
		s.logger.Debug().Str("job_id", jobID).Msg("Skipping already terminal job")
		return
	}

	if err := s.executor.Execute(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Job execution failed")
	}
}

// markQueuedJobCancelled finalizes a job that was cancelled before any
// worker picked it up.
func (s *Scheduler) markQueuedJobCancelled(jobID string) {
	ctx := context.Background()
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load cancelled job")
		return
	}
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.Error = cancelMessage
	job.CompletedAt = &now
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := s.storage.JobStorage().UpdateJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to persist queued-job cancellation")
		return
	}
	s.recordEvent(jobID, models.TaskEventCancelled, map[string]any{"queued": true})
}

// sweepStale re-enqueues jobs stuck in `running` in storage with no live
// worker, which happens when a previous process died mid-job.
func (s *Scheduler) sweepStale() {
	ctx := context.Background()
	jobs, err := s.storage.JobStorage().GetResumableJobs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stale-job sweep failed to list jobs")
		return
	}

	for _, job := range jobs {
		if job.Status != models.JobStatusRunning || job.StartedAt == nil {
			continue
		}
		if time.Since(*job.StartedAt) < s.staleAfter {
			continue
		}
		if s.IsActive(job.ID) {
			continue
		}
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("started_at", job.StartedAt.Format(time.RFC3339)).
			Msg("Re-enqueueing stale running job")
		if err := s.Enqueue(job.ID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to re-enqueue stale job")
		}
	}
}

func (s *Scheduler) recordEvent(jobID string, eventType models.TaskEventType, payload map[string]any) {
	if err := s.events.Record(context.Background(), jobID, eventType, payload); err != nil {
		s.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("type", string(eventType)).
			Msg("Failed to record task event")
	}
}
