package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(common.GetLogger(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func newTestJob(id string) *models.Job {
	return &models.Job{
		ID:        id,
		TargetURL: "https://example.com",
		Mode:      models.JobModeSingle,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now(),
	}
}

func TestJobStorage_CreateAndGet(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	job := newTestJob("job_1")
	job.Options = &models.ScanOptions{MaxPages: 10, SiteDepth: 3}
	require.NoError(t, manager.JobStorage().CreateJob(ctx, job))

	loaded, err := manager.JobStorage().GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", loaded.TargetURL)
	assert.Equal(t, models.JobStatusPending, loaded.Status)
	require.NotNil(t, loaded.Options)
	assert.Equal(t, 10, loaded.Options.MaxPages)
	assert.Nil(t, loaded.StartedAt)
	assert.Nil(t, loaded.IssuesSummary)
}

func TestJobStorage_GetMissing(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.JobStorage().GetJob(context.Background(), "job_nope")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestJobStorage_UpdateLifecycle(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	job := newTestJob("job_1")
	require.NoError(t, manager.JobStorage().CreateJob(ctx, job))

	now := time.Now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	require.NoError(t, manager.JobStorage().UpdateJob(ctx, job))

	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	job.IssuesSummary = &models.AggregatedSummary{PagesAnalysed: 2}
	require.NoError(t, manager.JobStorage().UpdateJob(ctx, job))

	loaded, err := manager.JobStorage().GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, loaded.Status)
	require.NotNil(t, loaded.StartedAt)
	require.NotNil(t, loaded.CompletedAt)
	require.NotNil(t, loaded.IssuesSummary)
	assert.Equal(t, 2, loaded.IssuesSummary.PagesAnalysed)
}

func TestJobStorage_ListWithFilterAndPagination(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusCompleted, models.JobStatusCompleted,
	} {
		job := newTestJob("job_" + string(rune('a'+i)))
		job.Status = status
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, manager.JobStorage().CreateJob(ctx, job))
	}

	jobs, total, err := manager.JobStorage().ListJobs(ctx, &interfaces.ListJobsOptions{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, jobs, 2)

	jobs, total, err = manager.JobStorage().ListJobs(ctx, &interfaces.ListJobsOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, jobs, 1)
	// Newest first
	assert.Equal(t, "job_b", jobs[0].ID)
}

func TestJobStorage_GetResumableJobsOrdered(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	specs := []struct {
		id     string
		status models.JobStatus
		offset time.Duration
	}{
		{"job_old_running", models.JobStatusRunning, 0},
		{"job_done", models.JobStatusCompleted, time.Minute},
		{"job_new_pending", models.JobStatusPending, 2 * time.Minute},
	}
	for _, spec := range specs {
		job := newTestJob(spec.id)
		job.Status = spec.status
		job.CreatedAt = base.Add(spec.offset)
		require.NoError(t, manager.JobStorage().CreateJob(ctx, job))
	}

	jobs, err := manager.JobStorage().GetResumableJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job_old_running", jobs[0].ID)
	assert.Equal(t, "job_new_pending", jobs[1].ID)
}

func TestJobStorage_IncrementPagesFinished(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.JobStorage().CreateJob(ctx, newTestJob("job_1")))

	n, err := manager.JobStorage().IncrementPagesFinished(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = manager.JobStorage().IncrementPagesFinished(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJobStorage_DeleteCascades(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	job := newTestJob("job_1")
	job.Status = models.JobStatusCompleted
	require.NoError(t, manager.JobStorage().CreateJob(ctx, job))

	page := &models.Page{
		ID: "page_1", JobID: "job_1", URL: "https://example.com",
		Status: models.PageStatusProcessing, CreatedAt: time.Now(),
	}
	require.NoError(t, manager.PageStorage().CreatePage(ctx, page))
	page.Status = models.PageStatusCompleted
	require.NoError(t, manager.PageStorage().SaveMetrics(ctx, page,
		&models.SeoMetrics{Title: "T", Score: 90},
		&models.LinkMetrics{InternalLinks: 2},
		[]models.TrackingEvent{{Platform: "ga", Status: models.TrackingDetected}},
	))
	require.NoError(t, manager.TaskEventStorage().AppendTaskEvent(ctx,
		&models.TaskEvent{JobID: "job_1", Type: models.TaskEventCompleted}))

	require.NoError(t, manager.JobStorage().DeleteJob(ctx, "job_1"))

	_, err := manager.JobStorage().GetJob(ctx, "job_1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	_, err = manager.PageStorage().GetPage(ctx, "page_1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	events, err := manager.TaskEventStorage().GetTaskEventsByJob(ctx, "job_1", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestJobStorage_DeleteActiveJobConflicts(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusRunning} {
		job := newTestJob("job_" + string(status))
		job.Status = status
		require.NoError(t, manager.JobStorage().CreateJob(ctx, job))

		err := manager.JobStorage().DeleteJob(ctx, job.ID)
		assert.ErrorIs(t, err, interfaces.ErrConflict)
	}
}

func TestJobStorage_CountByStatus(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for i, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusCompleted, models.JobStatusCompleted, models.JobStatusFailed,
	} {
		job := newTestJob("job_" + string(rune('a'+i)))
		job.Status = status
		require.NoError(t, manager.JobStorage().CreateJob(ctx, job))
	}

	counts, err := manager.JobStorage().CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobStatusPending])
	assert.Equal(t, 2, counts[models.JobStatusCompleted])
	assert.Equal(t, 1, counts[models.JobStatusFailed])
}
