package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
	"github.com/ternarybob/seoscan/internal/storage/sqlite"
)

// fakeScheduler records enqueue and cancel calls without running anything
type fakeScheduler struct {
	enqueued  []string
	cancelled []string
	cancelOK  bool
}

func (f *fakeScheduler) Start(ctx context.Context) error { return nil }
func (f *fakeScheduler) Enqueue(jobID string) error {
	f.enqueued = append(f.enqueued, jobID)
	return nil
}
func (f *fakeScheduler) Cancel(jobID string) bool {
	f.cancelled = append(f.cancelled, jobID)
	return f.cancelOK
}
func (f *fakeScheduler) IsActive(jobID string) bool { return false }
func (f *fakeScheduler) GetState() interfaces.SchedulerState {
	return interfaces.SchedulerState{
		QueuedJobIDs:       []string{},
		RunningJobIDs:      []string{},
		CancelRequestedIDs: append([]string{}, f.cancelled...),
		WorkerCount:        5,
		Accepting:          true,
	}
}
func (f *fakeScheduler) Stop(ctx context.Context) error { return nil }

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := sqlite.NewManager(common.GetLogger(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func newTestScanHandler(t *testing.T) (*ScanHandler, interfaces.StorageManager, *fakeScheduler) {
	t.Helper()
	manager := newTestStorage(t)
	scheduler := &fakeScheduler{cancelOK: true}
	return NewScanHandler(manager, scheduler, common.GetLogger()), manager, scheduler
}

func seedJob(t *testing.T, manager interfaces.StorageManager, status models.JobStatus, targetURL string) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:        common.NewJobID(),
		TargetURL: targetURL,
		Mode:      models.JobModeSingle,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if status != models.JobStatusPending {
		now := time.Now()
		job.StartedAt = &now
	}
	if job.IsTerminal() {
		now := time.Now()
		job.CompletedAt = &now
	}
	if status == models.JobStatusFailed {
		job.Error = "fetch timed out"
	}
	require.NoError(t, manager.JobStorage().CreateJob(context.Background(), job))
	return job
}

func TestCreateScanHandler(t *testing.T) {
	handler, _, scheduler := newTestScanHandler(t)

	body := `{"targetUrl": "https://example.com/shop/", "mode": "site", "options": {"maxPages": 10}}`
	req := httptest.NewRequest("POST", "/api/scans", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.CreateScanHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "https://example.com/shop", job.TargetURL)
	assert.Equal(t, models.JobModeSite, job.Mode)
	assert.Equal(t, models.JobStatusPending, job.Status)
	require.NotNil(t, job.Options)
	assert.Equal(t, 10, job.Options.MaxPages)

	assert.Equal(t, []string{job.ID}, scheduler.enqueued)
}

func TestCreateScanHandlerRejectsInvalidInput(t *testing.T) {
	handler, _, scheduler := newTestScanHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad mode", `{"targetUrl": "https://example.com", "mode": "everything"}`},
		{"missing url", `{"mode": "single"}`},
		{"not a url", `{"targetUrl": "example dot com", "mode": "single"}`},
		{"depth out of range", `{"targetUrl": "https://example.com", "mode": "site", "options": {"siteDepth": 99}}`},
		{"broken json", `{"targetUrl"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/scans", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.CreateScanHandler(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, scheduler.enqueued)
}

func TestListScansHandler(t *testing.T) {
	handler, manager, _ := newTestScanHandler(t)
	seedJob(t, manager, models.JobStatusCompleted, "https://alpha.example.com")
	seedJob(t, manager, models.JobStatusFailed, "https://beta.example.com")
	seedJob(t, manager, models.JobStatusPending, "https://alpha.example.com/two")

	req := httptest.NewRequest("GET", "/api/scans?limit=2", nil)
	rec := httptest.NewRecorder()
	handler.ListScansHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs       []*models.Job `json:"jobs"`
		Pagination Pagination    `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 2)
	assert.Equal(t, 3, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Limit)

	// Status filter
	req = httptest.NewRequest("GET", "/api/scans?status=failed", nil)
	rec = httptest.NewRecorder()
	handler.ListScansHandler(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, models.JobStatusFailed, resp.Jobs[0].Status)

	// Substring search on target URL
	req = httptest.NewRequest("GET", "/api/scans?search=alpha", nil)
	rec = httptest.NewRecorder()
	handler.ListScansHandler(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 2)
}

func TestGetScanHandler(t *testing.T) {
	handler, manager, _ := newTestScanHandler(t)
	job := seedJob(t, manager, models.JobStatusCompleted, "https://example.com")

	rec := httptest.NewRecorder()
	handler.GetScanHandler(rec, httptest.NewRequest("GET", "/api/scans/"+job.ID, nil), job.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	assert.Equal(t, job.ID, loaded.ID)

	rec = httptest.NewRecorder()
	handler.GetScanHandler(rec, httptest.NewRequest("GET", "/api/scans/job_missing", nil), "job_missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteScanHandler(t *testing.T) {
	handler, manager, _ := newTestScanHandler(t)

	running := seedJob(t, manager, models.JobStatusRunning, "https://example.com/busy")
	rec := httptest.NewRecorder()
	handler.DeleteScanHandler(rec, httptest.NewRequest("DELETE", "/api/scans/"+running.ID, nil), running.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)

	done := seedJob(t, manager, models.JobStatusCompleted, "https://example.com/done")
	rec = httptest.NewRecorder()
	handler.DeleteScanHandler(rec, httptest.NewRequest("DELETE", "/api/scans/"+done.ID, nil), done.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := manager.JobStorage().GetJob(context.Background(), done.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	rec = httptest.NewRecorder()
	handler.DeleteScanHandler(rec, httptest.NewRequest("DELETE", "/api/scans/job_missing", nil), "job_missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelScanHandler(t *testing.T) {
	handler, manager, scheduler := newTestScanHandler(t)

	running := seedJob(t, manager, models.JobStatusRunning, "https://example.com")
	rec := httptest.NewRecorder()
	handler.CancelScanHandler(rec, httptest.NewRequest("POST", "/api/scans/"+running.ID+"/cancel", nil), running.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{running.ID}, scheduler.cancelled)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])

	completed := seedJob(t, manager, models.JobStatusCompleted, "https://example.com/done")
	rec = httptest.NewRecorder()
	handler.CancelScanHandler(rec, httptest.NewRequest("POST", "/api/scans/"+completed.ID+"/cancel", nil), completed.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	handler.CancelScanHandler(rec, httptest.NewRequest("POST", "/api/scans/job_missing/cancel", nil), "job_missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryScanHandler(t *testing.T) {
	handler, manager, scheduler := newTestScanHandler(t)

	failed := seedJob(t, manager, models.JobStatusFailed, "https://example.com")
	rec := httptest.NewRecorder()
	handler.RetryScanHandler(rec, httptest.NewRequest("POST", "/api/scans/"+failed.ID+"/retry", nil), failed.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, scheduler.enqueued, failed.ID)

	reloaded, err := manager.JobStorage().GetJob(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, reloaded.Status)
	assert.Empty(t, reloaded.Error)
	assert.Nil(t, reloaded.StartedAt)
	assert.Nil(t, reloaded.CompletedAt)

	completed := seedJob(t, manager, models.JobStatusCompleted, "https://example.com/done")
	rec = httptest.NewRecorder()
	handler.RetryScanHandler(rec, httptest.NewRequest("POST", "/api/scans/"+completed.ID+"/retry", nil), completed.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func seedPage(t *testing.T, manager interfaces.StorageManager, jobID, url string, seoScore int) *models.Page {
	t.Helper()
	page := &models.Page{
		ID:        common.NewPageID(),
		JobID:     jobID,
		URL:       url,
		Status:    models.PageStatusProcessing,
		CreatedAt: time.Now(),
	}
	require.NoError(t, manager.PageStorage().CreatePage(context.Background(), page))

	page.Status = models.PageStatusCompleted
	page.HTTPStatus = 200
	seo := &models.SeoMetrics{Title: "Page " + url, Score: seoScore}
	links := &models.LinkMetrics{InternalLinks: 3, ExternalLinks: 1}
	events := []models.TrackingEvent{
		{Element: "script", Trigger: "pageload", Platform: "mixpanel", EventName: "Viewed", Status: models.TrackingDetected},
	}
	require.NoError(t, manager.PageStorage().SaveMetrics(context.Background(), page, seo, links, events))
	return page
}

func TestListPagesHandler(t *testing.T) {
	handler, manager, _ := newTestScanHandler(t)
	job := seedJob(t, manager, models.JobStatusCompleted, "https://example.com")
	seedPage(t, manager, job.ID, "https://example.com", 90)
	seedPage(t, manager, job.ID, "https://example.com/low", 40)

	req := httptest.NewRequest("GET", "/api/scans/"+job.ID+"/pages?sort=seoScore&direction=desc", nil)
	rec := httptest.NewRecorder()
	handler.ListPagesHandler(rec, req, job.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Pages      []*models.PageWithMetrics `json:"pages"`
		Pagination Pagination                `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Pages, 2)
	assert.Equal(t, 2, resp.Pagination.Total)

	// Ordered by joined SEO score, tracking events attached
	assert.Equal(t, 90, resp.Pages[0].Seo.Score)
	assert.Equal(t, 40, resp.Pages[1].Seo.Score)
	require.Len(t, resp.Pages[0].Tracking, 1)
	assert.Equal(t, "mixpanel", resp.Pages[0].Tracking[0].Platform)

	rec = httptest.NewRecorder()
	handler.ListPagesHandler(rec, httptest.NewRequest("GET", "/api/scans/job_missing/pages", nil), "job_missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPageHandler(t *testing.T) {
	handler, manager, _ := newTestScanHandler(t)
	job := seedJob(t, manager, models.JobStatusCompleted, "https://example.com")
	other := seedJob(t, manager, models.JobStatusCompleted, "https://other.com")
	page := seedPage(t, manager, job.ID, "https://example.com", 75)

	rec := httptest.NewRecorder()
	handler.GetPageHandler(rec, httptest.NewRequest("GET", "/", nil), job.ID, page.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded models.PageWithMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	assert.Equal(t, page.ID, loaded.ID)
	require.NotNil(t, loaded.Seo)
	assert.Equal(t, 75, loaded.Seo.Score)

	// A page id under the wrong job is not found
	rec = httptest.NewRecorder()
	handler.GetPageHandler(rec, httptest.NewRequest("GET", "/", nil), other.ID, page.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueStateHandler(t *testing.T) {
	handler, _, _ := newTestScanHandler(t)

	rec := httptest.NewRecorder()
	handler.QueueStateHandler(rec, httptest.NewRequest("GET", "/api/scans/queue/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state interfaces.SchedulerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, 5, state.WorkerCount)
	assert.True(t, state.Accepting)
	assert.Empty(t, state.CancelRequestedIDs)
}

func TestQueueStateHandlerReportsCancelRequested(t *testing.T) {
	handler, manager, _ := newTestScanHandler(t)
	job := seedJob(t, manager, models.JobStatusRunning, "https://example.com")

	rec := httptest.NewRecorder()
	handler.CancelScanHandler(rec, httptest.NewRequest("POST", "/api/scans/"+job.ID+"/cancel", nil), job.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.QueueStateHandler(rec, httptest.NewRequest("GET", "/api/scans/queue/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state interfaces.SchedulerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, []string{job.ID}, state.CancelRequestedIDs)
}

func TestStatsHandler(t *testing.T) {
	handler, manager, _ := newTestScanHandler(t)
	seedJob(t, manager, models.JobStatusCompleted, "https://example.com")
	seedJob(t, manager, models.JobStatusCompleted, "https://example.com/two")
	seedJob(t, manager, models.JobStatusFailed, "https://example.com/bad")

	rec := httptest.NewRecorder()
	handler.StatsHandler(rec, httptest.NewRequest("GET", "/api/scans/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats["total"])
	assert.Equal(t, 2, stats["completed"])
	assert.Equal(t, 1, stats["failed"])
	assert.Equal(t, 0, stats["running"])
}
