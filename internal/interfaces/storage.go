package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/seoscan/internal/models"
)

// Sentinel errors storage implementations return so callers can map them to
// API status codes.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ListJobsOptions filters, sorts and pages the jobs listing
type ListJobsOptions struct {
	Search   string // Substring match on target URL
	Mode     string
	Status   string
	SortBy   string // createdAt, startedAt, completedAt, pagesTotal, pagesFinished
	SortDesc bool
	Limit    int
	Offset   int
}

// ListPagesOptions filters and sorts a job's page listing
type ListPagesOptions struct {
	Search   string // Substring match on page URL
	Status   string
	SortBy   string // createdAt, url, httpStatus, loadTimeMs, seoScore
	SortDesc bool
	Limit    int
	Offset   int
}

// JobStorage - interface for scan job persistence
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	ListJobs(ctx context.Context, opts *ListJobsOptions) ([]*models.Job, int, error)
	DeleteJob(ctx context.Context, id string) error

	// GetResumableJobs returns pending and running jobs ordered by creation
	// time, used by the scheduler to recover work after a restart.
	GetResumableJobs(ctx context.Context) ([]*models.Job, error)

	// IncrementPagesFinished atomically bumps the finished counter and
	// returns the new value.
	IncrementPagesFinished(ctx context.Context, id string) (int, error)

	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// PageStorage - interface for scanned page and metric persistence
type PageStorage interface {
	// CreatePage commits the page row in its own transaction so a
	// processing marker survives later analysis failures.
	CreatePage(ctx context.Context, page *models.Page) error
	UpdatePage(ctx context.Context, page *models.Page) error
	GetPage(ctx context.Context, id string) (*models.Page, error)

	// SaveMetrics writes the page's metric rows and the final page state in
	// one transaction.
	SaveMetrics(ctx context.Context, page *models.Page, seo *models.SeoMetrics, links *models.LinkMetrics, events []models.TrackingEvent) error

	ListPages(ctx context.Context, jobID string, opts *ListPagesOptions) ([]*models.PageWithMetrics, int, error)
	GetPageWithMetrics(ctx context.Context, id string) (*models.PageWithMetrics, error)
	GetTrackingEvents(ctx context.Context, pageIDs []string) (map[string][]models.TrackingEvent, error)
	CountPagesByJob(ctx context.Context, jobID string) (int, error)
	GetIssueSummaries(ctx context.Context, jobID string) ([]*models.IssueSummary, error)
}

// TaskEventStorage - interface for the append-only task event log
type TaskEventStorage interface {
	AppendTaskEvent(ctx context.Context, event *models.TaskEvent) error
	GetRecentTaskEvents(ctx context.Context, limit int) ([]*models.TaskEvent, error)
	GetTaskEventsByJob(ctx context.Context, jobID string, limit int) ([]*models.TaskEvent, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	PageStorage() PageStorage
	TaskEventStorage() TaskEventStorage
	Close() error
}
