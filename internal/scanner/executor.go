package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/analyzer"
	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// ErrJobCancelled marks a cooperative cancellation observed between pages
// or pipeline steps.
var ErrJobCancelled = errors.New("job cancelled")

// cancelMessage is the user-visible error string on a cancelled job
const cancelMessage = "Job was cancelled by user"

// siteScanner is the slice of the crawler the executor needs
type siteScanner interface {
	ScanSite(ctx context.Context, job *models.Job, onPage func(*SingleScanResult) error) (*CrawlOutcome, error)
}

// Executor drives one job from running to a terminal state. Work respects
// the job context for cancellation; bookkeeping writes use a detached
// context so terminal state still lands after a cancel.
type Executor struct {
	storage  interfaces.StorageManager
	events   interfaces.TaskEventService
	pipeline pageScanner
	crawler  siteScanner
	config   common.ScannerConfig
	logger   arbor.ILogger
}

// NewExecutor wires the job executor
func NewExecutor(storage interfaces.StorageManager, events interfaces.TaskEventService, pipeline pageScanner, crawler siteScanner, config common.ScannerConfig, logger arbor.ILogger) *Executor {
	return &Executor{
		storage:  storage,
		events:   events,
		pipeline: pipeline,
		crawler:  crawler,
		config:   config,
		logger:   logger,
	}
}

var _ interfaces.JobExecutor = (*Executor)(nil)

// Execute runs the job to completion. Cancellation is absorbed: the job is
// marked failed with the cancellation message and nil is returned. Any
// other failure marks the job failed and is returned for the scheduler to
// log.
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	book := context.WithoutCancel(ctx)

	now := time.Now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	job.Error = ""
	job.PagesFinished = 0
	if err := e.storage.JobStorage().UpdateJob(book, job); err != nil {
		return err
	}
	e.record(book, job.ID, models.TaskEventStarted, map[string]any{
		"targetUrl": job.TargetURL,
		"mode":      string(job.Mode),
	})

	var summary *models.AggregatedSummary
	var err error
	if job.Mode == models.JobModeSite {
		summary, err = e.runSite(ctx, book, job)
	} else {
		summary, err = e.runSingle(ctx, book, job)
	}

	completed := time.Now()
	job.CompletedAt = &completed

	switch {
	case err == nil:
		job.Status = models.JobStatusCompleted
		job.IssuesSummary = summary
		if updateErr := e.storage.JobStorage().UpdateJob(book, job); updateErr != nil {
			return updateErr
		}
		e.record(book, job.ID, models.TaskEventCompleted, map[string]any{
			"pagesFinished": job.PagesFinished,
			"pagesTotal":    job.PagesTotal,
		})
		e.logger.Info().
			Str("job_id", job.ID).
			Int("pages", job.PagesFinished).
			Msg("Job completed")
		return nil

	case errors.Is(err, ErrJobCancelled) || errors.Is(err, context.Canceled):
		job.Status = models.JobStatusFailed
		job.Error = cancelMessage
		if updateErr := e.storage.JobStorage().UpdateJob(book, job); updateErr != nil {
			return updateErr
		}
		e.record(book, job.ID, models.TaskEventCancelled, map[string]any{
			"pagesFinished": job.PagesFinished,
		})
		e.logger.Info().Str("job_id", job.ID).Msg("Job cancelled")
		return nil

	default:
		job.Status = models.JobStatusFailed
		job.Error = err.Error()
		if updateErr := e.storage.JobStorage().UpdateJob(book, job); updateErr != nil {
			e.logger.Error().Err(updateErr).Str("job_id", job.ID).Msg("Failed to persist job failure")
		}
		e.record(book, job.ID, models.TaskEventFailed, map[string]any{
			"error": job.Error,
		})
		return err
	}
}

// runSingle scans the single target URL, reporting the pipeline's logical
// steps as progress.
func (e *Executor) runSingle(ctx, book context.Context, job *models.Job) (*models.AggregatedSummary, error) {
	job.PagesTotal = singleScanSteps
	if err := e.storage.JobStorage().UpdateJob(book, job); err != nil {
		return nil, err
	}

	step := func(message string) error {
		if ctx.Err() != nil {
			return ErrJobCancelled
		}
		n, err := e.storage.JobStorage().IncrementPagesFinished(book, job.ID)
		if err != nil {
			return err
		}
		job.PagesFinished = n
		e.record(book, job.ID, models.TaskEventPageCompleted, map[string]any{
			"pagesFinished": n,
			"message":       message,
		})
		return nil
	}

	result, err := e.pipeline.ScanPage(ctx, job, job.TargetURL, step)
	if err != nil {
		return nil, err
	}
	return analyzer.AggregateSummaries([]*models.IssueSummary{result.IssueSummary}), nil
}

// runSite crawls the whole site; pagesTotal starts as the page budget and
// is trimmed to the real count on completion.
func (e *Executor) runSite(ctx, book context.Context, job *models.Job) (*models.AggregatedSummary, error) {
	maxPages := e.config.MaxPages
	if job.Options != nil && job.Options.MaxPages > 0 {
		maxPages = job.Options.MaxPages
	}
	job.PagesTotal = maxPages
	if err := e.storage.JobStorage().UpdateJob(book, job); err != nil {
		return nil, err
	}

	onPage := func(result *SingleScanResult) error {
		if ctx.Err() != nil {
			return ErrJobCancelled
		}
		n, err := e.storage.JobStorage().IncrementPagesFinished(book, job.ID)
		if err != nil {
			return err
		}
		job.PagesFinished = n
		e.record(book, job.ID, models.TaskEventPageCompleted, map[string]any{
			"pageId":        result.PageID,
			"url":           result.URL,
			"httpStatus":    result.HTTPStatus,
			"loadTimeMs":    result.LoadTimeMs,
			"pagesFinished": n,
		})
		return nil
	}

	outcome, err := e.crawler.ScanSite(ctx, job, onPage)
	if err != nil {
		return nil, err
	}
	job.PagesTotal = outcome.PagesTotal
	return outcome.Summary, nil
}

func (e *Executor) record(ctx context.Context, jobID string, eventType models.TaskEventType, payload map[string]any) {
	if err := e.events.Record(ctx, jobID, eventType, payload); err != nil {
		e.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("type", string(eventType)).
			Msg("Failed to record task event")
	}
}
