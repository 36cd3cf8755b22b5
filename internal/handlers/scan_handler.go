package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// ScanHandler exposes scan job CRUD, lifecycle actions and page queries
type ScanHandler struct {
	storage   interfaces.StorageManager
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
	validate  *validator.Validate
}

// NewScanHandler creates a new scan handler
func NewScanHandler(storage interfaces.StorageManager, scheduler interfaces.SchedulerService, logger arbor.ILogger) *ScanHandler {
	return &ScanHandler{
		storage:   storage,
		scheduler: scheduler,
		logger:    logger,
		validate:  validator.New(),
	}
}

// createScanRequest is the POST /api/scans body
type createScanRequest struct {
	TargetURL string              `json:"targetUrl" validate:"required,url"`
	Mode      string              `json:"mode" validate:"required,oneof=single site"`
	Options   *models.ScanOptions `json:"options,omitempty"`
}

// CreateScanHandler handles POST /api/scans
func (h *ScanHandler) CreateScanHandler(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	normalized, err := common.NormalizeURL(req.TargetURL)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid target URL: "+err.Error())
		return
	}

	job := &models.Job{
		ID:        common.NewJobID(),
		TargetURL: normalized,
		Mode:      models.JobMode(req.Mode),
		Status:    models.JobStatusPending,
		Options:   req.Options,
		CreatedAt: time.Now(),
	}

	if err := h.storage.JobStorage().CreateJob(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Str("target_url", normalized).Msg("Failed to create scan job")
		WriteError(w, http.StatusInternalServerError, "Failed to create scan job")
		return
	}

	if err := h.scheduler.Enqueue(job.ID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Job created but not enqueued")
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("target_url", job.TargetURL).
		Str("mode", string(job.Mode)).
		Msg("Scan job created")

	WriteJSON(w, http.StatusCreated, job)
}

var jobSortKeys = map[string]bool{
	"createdAt":     true,
	"startedAt":     true,
	"completedAt":   true,
	"pagesTotal":    true,
	"pagesFinished": true,
}

// ListScansHandler handles GET /api/scans
func (h *ScanHandler) ListScansHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := GetPaginationParams(r)
	sortBy, sortDesc := GetSortParams(r, jobSortKeys)

	opts := &interfaces.ListJobsOptions{
		Search:   r.URL.Query().Get("search"),
		Mode:     r.URL.Query().Get("mode"),
		Status:   r.URL.Query().Get("status"),
		SortBy:   sortBy,
		SortDesc: sortDesc,
		Limit:    limit,
		Offset:   offset,
	}

	jobs, total, err := h.storage.JobStorage().ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list scan jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list scan jobs")
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":       jobs,
		"pagination": Pagination{Total: total, Limit: limit, Offset: offset},
	})
}

// GetScanHandler handles GET /api/scans/{id}
func (h *ScanHandler) GetScanHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.storage.JobStorage().GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Scan job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load scan job")
		WriteError(w, http.StatusInternalServerError, "Failed to load scan job")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// DeleteScanHandler handles DELETE /api/scans/{id}. Deleting a pending or
// running job is rejected with a conflict.
func (h *ScanHandler) DeleteScanHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	err := h.storage.JobStorage().DeleteJob(r.Context(), jobID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Scan job not found")
	case errors.Is(err, interfaces.ErrConflict):
		WriteError(w, http.StatusConflict, "Cannot delete a pending or running scan job")
	default:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete scan job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete scan job")
	}
}

// CancelScanHandler handles POST /api/scans/{id}/cancel
func (h *ScanHandler) CancelScanHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.storage.JobStorage().GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Scan job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load scan job")
		WriteError(w, http.StatusInternalServerError, "Failed to load scan job")
		return
	}

	if job.IsTerminal() {
		WriteError(w, http.StatusConflict, "Scan job is already "+string(job.Status))
		return
	}

	if !h.scheduler.Cancel(jobID) {
		WriteError(w, http.StatusConflict, "Scan job is not queued or running")
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Scan job cancellation requested")
	WriteSuccess(w, "Cancellation requested")
}

// RetryScanHandler handles POST /api/scans/{id}/retry. Only failed jobs can
// be retried; the job is reset to pending and re-enqueued.
func (h *ScanHandler) RetryScanHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.storage.JobStorage().GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Scan job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load scan job")
		WriteError(w, http.StatusInternalServerError, "Failed to load scan job")
		return
	}

	if job.Status != models.JobStatusFailed {
		WriteError(w, http.StatusConflict, "Only failed scan jobs can be retried")
		return
	}

	job.Status = models.JobStatusPending
	job.Error = ""
	job.PagesTotal = 0
	job.PagesFinished = 0
	job.IssuesSummary = nil
	job.StartedAt = nil
	job.CompletedAt = nil

	if err := h.storage.JobStorage().UpdateJob(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to reset scan job")
		WriteError(w, http.StatusInternalServerError, "Failed to reset scan job")
		return
	}

	if err := h.scheduler.Enqueue(job.ID); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to enqueue retried scan job")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue scan job")
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Scan job retried")
	WriteJSON(w, http.StatusOK, job)
}

var pageSortKeys = map[string]bool{
	"createdAt":  true,
	"url":        true,
	"httpStatus": true,
	"loadTimeMs": true,
	"seoScore":   true,
}

// ListPagesHandler handles GET /api/scans/{id}/pages
func (h *ScanHandler) ListPagesHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, err := h.storage.JobStorage().GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Scan job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load scan job")
		WriteError(w, http.StatusInternalServerError, "Failed to load scan job")
		return
	}

	limit, offset := GetPaginationParams(r)
	sortBy, sortDesc := GetSortParams(r, pageSortKeys)

	opts := &interfaces.ListPagesOptions{
		Search:   r.URL.Query().Get("search"),
		Status:   r.URL.Query().Get("status"),
		SortBy:   sortBy,
		SortDesc: sortDesc,
		Limit:    limit,
		Offset:   offset,
	}

	pages, total, err := h.storage.PageStorage().ListPages(r.Context(), jobID, opts)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to list pages")
		WriteError(w, http.StatusInternalServerError, "Failed to list pages")
		return
	}

	// Batch-fetch tracking events for the listed pages
	pageIDs := make([]string, len(pages))
	for i, page := range pages {
		pageIDs[i] = page.ID
	}
	events, err := h.storage.PageStorage().GetTrackingEvents(r.Context(), pageIDs)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load tracking events")
		WriteError(w, http.StatusInternalServerError, "Failed to load tracking events")
		return
	}
	for _, page := range pages {
		page.Tracking = events[page.ID]
	}
	if pages == nil {
		pages = []*models.PageWithMetrics{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pages":      pages,
		"pagination": Pagination{Total: total, Limit: limit, Offset: offset},
	})
}

// GetPageHandler handles GET /api/scans/{id}/pages/{pageId}
func (h *ScanHandler) GetPageHandler(w http.ResponseWriter, r *http.Request, jobID, pageID string) {
	page, err := h.storage.PageStorage().GetPageWithMetrics(r.Context(), pageID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Page not found")
			return
		}
		h.logger.Error().Err(err).Str("page_id", pageID).Msg("Failed to load page")
		WriteError(w, http.StatusInternalServerError, "Failed to load page")
		return
	}
	if page.JobID != jobID {
		WriteError(w, http.StatusNotFound, "Page not found")
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// QueueStateHandler handles GET /api/scans/queue/state
func (h *ScanHandler) QueueStateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.scheduler.GetState())
}

// StatsHandler handles GET /api/scans/stats
func (h *ScanHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	counts, err := h.storage.JobStorage().CountJobsByStatus(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count scan jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to count scan jobs")
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"pending":   counts[models.JobStatusPending],
		"running":   counts[models.JobStatusRunning],
		"completed": counts[models.JobStatusCompleted],
		"failed":    counts[models.JobStatusFailed],
	})
}
