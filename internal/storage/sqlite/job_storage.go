package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// JobStorage implements SQLite persistence for scan jobs
type JobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new job storage instance
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `id, target_url, mode, status, pages_total, pages_finished, issues_summary, options, created_at, started_at, completed_at, error`

// CreateJob inserts a new job row
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaryJSON, optionsJSON, err := serializeJobBlobs(job)
	if err != nil {
		return err
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO scan_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TargetURL, string(job.Mode), string(job.Status),
		job.PagesTotal, job.PagesFinished, summaryJSON, optionsJSON,
		job.CreatedAt.Unix(), nullUnix(job.StartedAt), nullUnix(job.CompletedAt),
		nullString(job.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob loads one job by id
func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scan_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// UpdateJob rewrites every mutable column of the job row
func (s *JobStorage) UpdateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaryJSON, optionsJSON, err := serializeJobBlobs(job)
	if err != nil {
		return err
	}

	result, err := s.db.db.ExecContext(ctx, `
		UPDATE scan_jobs SET
			target_url = ?, mode = ?, status = ?, pages_total = ?,
			pages_finished = ?, issues_summary = ?, options = ?,
			started_at = ?, completed_at = ?, error = ?
		WHERE id = ?`,
		job.TargetURL, string(job.Mode), string(job.Status), job.PagesTotal,
		job.PagesFinished, summaryJSON, optionsJSON,
		nullUnix(job.StartedAt), nullUnix(job.CompletedAt), nullString(job.Error),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("job %s: %w", job.ID, interfaces.ErrNotFound)
	}
	return nil
}

// jobSortColumns maps API sort keys to SQL order expressions
var jobSortColumns = map[string]string{
	"createdAt":     "created_at",
	"startedAt":     "started_at",
	"completedAt":   "completed_at",
	"pagesTotal":    "pages_total",
	"pagesFinished": "pages_finished",
}

// ListJobs returns a filtered page of jobs plus the filtered-match total
func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.ListJobsOptions) ([]*models.Job, int, error) {
	if opts == nil {
		opts = &interfaces.ListJobsOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var clauses []string
	args := []any{}
	if opts.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, opts.Status)
	}
	if opts.Mode != "" {
		clauses = append(clauses, "mode = ?")
		args = append(args, opts.Mode)
	}
	if opts.Search != "" {
		clauses = append(clauses, "target_url LIKE ?")
		args = append(args, "%"+opts.Search+"%")
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	orderCol, ok := jobSortColumns[opts.SortBy]
	if !ok {
		orderCol = "created_at"
	}
	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}

	args = append(args, limit, opts.Offset)
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM scan_jobs`+where+
			fmt.Sprintf(` ORDER BY %s %s, id %s LIMIT ? OFFSET ?`, orderCol, direction, direction), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// DeleteJob removes a terminal job and everything it owns in one
// transaction. Deleting a pending or running job is a conflict.
func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM scan_jobs WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("job %s: %w", id, interfaces.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load job status: %w", err)
	}
	if status == string(models.JobStatusPending) || status == string(models.JobStatusRunning) {
		return fmt.Errorf("job %s is %s: %w", id, status, interfaces.ErrConflict)
	}

	deletes := []string{
		`DELETE FROM tracking_events WHERE page_id IN (SELECT id FROM scan_pages WHERE job_id = ?)`,
		`DELETE FROM seo_metrics WHERE page_id IN (SELECT id FROM scan_pages WHERE job_id = ?)`,
		`DELETE FROM link_metrics WHERE page_id IN (SELECT id FROM scan_pages WHERE job_id = ?)`,
		`DELETE FROM scan_pages WHERE job_id = ?`,
		`DELETE FROM task_events WHERE job_id = ?`,
		`DELETE FROM scan_jobs WHERE id = ?`,
	}
	for _, stmt := range deletes {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete job data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	s.logger.Info().Str("job_id", id).Msg("Job deleted with all pages and events")
	return nil
}

// GetResumableJobs returns pending and running jobs in creation order
func (s *JobStorage) GetResumableJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM scan_jobs
		 WHERE status IN (?, ?) ORDER BY created_at ASC, id ASC`,
		string(models.JobStatusPending), string(models.JobStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to load resumable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// IncrementPagesFinished atomically bumps the finished counter
func (s *JobStorage) IncrementPagesFinished(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finished int
	err := s.db.db.QueryRowContext(ctx, `
		UPDATE scan_jobs SET pages_finished = pages_finished + 1
		WHERE id = ?
		RETURNING pages_finished`, id).Scan(&finished)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("job %s: %w", id, interfaces.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment pages finished: %w", err)
	}
	return finished, nil
}

// CountJobsByStatus returns job counts grouped by status
func (s *JobStorage) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM scan_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := map[models.JobStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.JobStatus(status)] = count
	}
	return counts, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var mode, status string
	var summaryJSON, optionsJSON, errMsg sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(&job.ID, &job.TargetURL, &mode, &status,
		&job.PagesTotal, &job.PagesFinished, &summaryJSON, &optionsJSON,
		&createdAt, &startedAt, &completedAt, &errMsg)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job row: %w", err)
	}

	job.Mode = models.JobMode(mode)
	job.Status = models.JobStatus(status)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.StartedAt = timeFromNull(startedAt)
	job.CompletedAt = timeFromNull(completedAt)
	job.Error = errMsg.String

	if summaryJSON.Valid && summaryJSON.String != "" {
		summary, err := models.AggregatedSummaryFromJSON(summaryJSON.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse issues summary: %w", err)
		}
		job.IssuesSummary = summary
	}
	if optionsJSON.Valid && optionsJSON.String != "" {
		opts, err := models.ScanOptionsFromJSON(optionsJSON.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse scan options: %w", err)
		}
		job.Options = opts
	}

	return &job, nil
}

func serializeJobBlobs(job *models.Job) (summary, options sql.NullString, err error) {
	if job.IssuesSummary != nil {
		raw, e := job.IssuesSummary.ToJSON()
		if e != nil {
			return summary, options, fmt.Errorf("failed to serialize issues summary: %w", e)
		}
		summary = sql.NullString{String: raw, Valid: true}
	}
	if job.Options != nil {
		raw, e := job.Options.ToJSON()
		if e != nil {
			return summary, options, fmt.Errorf("failed to serialize options: %w", e)
		}
		options = sql.NullString{String: raw, Valid: true}
	}
	return summary, options, nil
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
