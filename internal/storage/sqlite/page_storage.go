package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// PageStorage implements SQLite persistence for pages and their metric rows
type PageStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewPageStorage creates a new page storage instance
func NewPageStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.PageStorage {
	return &PageStorage{
		db:     db,
		logger: logger,
	}
}

const pageColumns = `id, job_id, url, status, http_status, load_time_ms, issue_counts, device_variant, created_at`

// CreatePage commits the page row immediately, outside any metrics
// transaction, so a later analysis failure cannot roll it back.
func (s *PageStorage) CreatePage(ctx context.Context, page *models.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	countsJSON, err := issueCountsJSON(page.IssueCounts)
	if err != nil {
		return err
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO scan_pages (`+pageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		page.ID, page.JobID, page.URL, string(page.Status),
		nullInt(page.HTTPStatus), nullInt64(page.LoadTimeMs),
		countsJSON, nullString(string(page.DeviceVariant)), page.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}
	return nil
}

// UpdatePage rewrites the page row's mutable columns
func (s *PageStorage) UpdatePage(ctx context.Context, page *models.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePage(ctx, s.db.db, page)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PageStorage) updatePage(ctx context.Context, db execer, page *models.Page) error {
	countsJSON, err := issueCountsJSON(page.IssueCounts)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE scan_pages SET
			status = ?, http_status = ?, load_time_ms = ?,
			issue_counts = ?, device_variant = ?
		WHERE id = ?`,
		string(page.Status), nullInt(page.HTTPStatus), nullInt64(page.LoadTimeMs),
		countsJSON, nullString(string(page.DeviceVariant)), page.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("page %s: %w", page.ID, interfaces.ErrNotFound)
	}
	return nil
}

// GetPage loads one page row by id
func (s *PageStorage) GetPage(ctx context.Context, id string) (*models.Page, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM scan_pages WHERE id = ?`, id)
	return scanPage(row)
}

// SaveMetrics finalizes a page: the completed page state and all child
// metric rows commit or roll back together.
func (s *PageStorage) SaveMetrics(ctx context.Context, page *models.Page, seo *models.SeoMetrics, links *models.LinkMetrics, events []models.TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.updatePage(ctx, tx, page); err != nil {
		return err
	}

	if seo != nil {
		if seo.ID == "" {
			seo.ID = "seo_" + uuid.New().String()
		}
		seo.PageID = page.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO seo_metrics (
				id, page_id, title, meta_description, canonical, h1,
				robots_txt_blocked, schema_org, score, json_ld_score,
				json_ld_types, json_ld_issues, html_structure_score, html_structure_issues
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			seo.ID, seo.PageID, nullString(seo.Title), nullString(seo.MetaDescription),
			nullString(seo.Canonical), nullString(seo.H1), boolToInt(seo.RobotsBlocked),
			nullRaw(seo.SchemaOrg), seo.Score, seo.JSONLDScore,
			nullJSON(seo.JSONLDTypes), nullRaw(seo.JSONLDIssues),
			seo.HTMLStructureScore, nullRaw(seo.HTMLStructureIssues),
		)
		if err != nil {
			return fmt.Errorf("failed to insert seo metrics: %w", err)
		}
	}

	if links != nil {
		if links.ID == "" {
			links.ID = "lnk_" + uuid.New().String()
		}
		links.PageID = page.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO link_metrics (
				id, page_id, internal_links, external_links, utm_params, broken_links, redirects
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			links.ID, links.PageID, links.InternalLinks, links.ExternalLinks,
			nullRaw(links.UTMParams), links.BrokenLinks, links.Redirects,
		)
		if err != nil {
			return fmt.Errorf("failed to insert link metrics: %w", err)
		}
	}

	for i := range events {
		event := &events[i]
		if event.ID == "" {
			event.ID = "trk_" + uuid.New().String()
		}
		event.PageID = page.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tracking_events (
				id, page_id, element, "trigger", event_name, platform, device_variant, payload, status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.PageID, nullString(event.Element), nullString(event.Trigger),
			nullString(event.EventName), event.Platform,
			nullString(string(event.DeviceVariant)), nullJSON(event.Payload), string(event.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to insert tracking event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page metrics: %w", err)
	}
	return nil
}

// pageSortColumns maps API sort keys to SQL order expressions
var pageSortColumns = map[string]string{
	"createdAt":  "p.created_at",
	"url":        "p.url",
	"httpStatus": "p.http_status",
	"loadTimeMs": "p.load_time_ms",
	"seoScore":   "sm.score",
}

// ListPages joins pages with their metric rows, applying filter, sort and
// pagination. Tracking events are fetched separately in a batch.
func (s *PageStorage) ListPages(ctx context.Context, jobID string, opts *interfaces.ListPagesOptions) ([]*models.PageWithMetrics, int, error) {
	if opts == nil {
		opts = &interfaces.ListPagesOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	where := "WHERE p.job_id = ?"
	args := []any{jobID}
	if opts.Status != "" {
		where += " AND p.status = ?"
		args = append(args, opts.Status)
	}
	if opts.Search != "" {
		where += " AND p.url LIKE ?"
		args = append(args, "%"+opts.Search+"%")
	}

	var total int
	if err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_pages p `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pages: %w", err)
	}

	orderCol, ok := pageSortColumns[opts.SortBy]
	if !ok {
		orderCol = "p.created_at"
	}
	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}

	args = append(args, limit, opts.Offset)
	rows, err := s.db.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, %s, %s
		FROM scan_pages p
		LEFT JOIN seo_metrics sm ON sm.page_id = p.id
		LEFT JOIN link_metrics lm ON lm.page_id = p.id
		%s ORDER BY %s %s, p.id ASC LIMIT ? OFFSET ?`,
		prefixColumns("p", pageColumns), seoMetricColumns, linkMetricColumns,
		where, orderCol, direction), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*models.PageWithMetrics
	for rows.Next() {
		page, err := scanPageWithMetrics(rows)
		if err != nil {
			return nil, 0, err
		}
		pages = append(pages, page)
	}
	return pages, total, rows.Err()
}

// GetPageWithMetrics loads one page joined with its metric rows and events
func (s *PageStorage) GetPageWithMetrics(ctx context.Context, id string) (*models.PageWithMetrics, error) {
	row := s.db.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s, %s, %s
		FROM scan_pages p
		LEFT JOIN seo_metrics sm ON sm.page_id = p.id
		LEFT JOIN link_metrics lm ON lm.page_id = p.id
		WHERE p.id = ?`,
		prefixColumns("p", pageColumns), seoMetricColumns, linkMetricColumns), id)

	page, err := scanPageWithMetrics(row)
	if err != nil {
		return nil, err
	}

	events, err := s.GetTrackingEvents(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	page.Tracking = events[id]
	return page, nil
}

// GetTrackingEvents batch-fetches tracking events grouped by page id
func (s *PageStorage) GetTrackingEvents(ctx context.Context, pageIDs []string) (map[string][]models.TrackingEvent, error) {
	result := map[string][]models.TrackingEvent{}
	if len(pageIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pageIDs)), ",")
	args := make([]any, len(pageIDs))
	for i, id := range pageIDs {
		args[i] = id
	}

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, page_id, element, "trigger", event_name, platform, device_variant, payload, status
		FROM tracking_events WHERE page_id IN (`+placeholders+`) ORDER BY page_id, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracking events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var event models.TrackingEvent
		var element, trigger, eventName, deviceVariant, payload sql.NullString
		var status string
		if err := rows.Scan(&event.ID, &event.PageID, &element, &trigger,
			&eventName, &event.Platform, &deviceVariant, &payload, &status); err != nil {
			return nil, fmt.Errorf("failed to scan tracking event: %w", err)
		}
		event.Element = element.String
		event.Trigger = trigger.String
		event.EventName = eventName.String
		event.DeviceVariant = models.DeviceVariant(deviceVariant.String)
		event.Status = models.TrackingEventStatus(status)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &event.Payload); err != nil {
				return nil, fmt.Errorf("failed to parse tracking payload: %w", err)
			}
		}
		result[event.PageID] = append(result[event.PageID], event)
	}
	return result, rows.Err()
}

// CountPagesByJob returns the number of page rows for a job
func (s *PageStorage) CountPagesByJob(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_pages WHERE job_id = ?`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

// GetIssueSummaries returns the per-page issue summaries of a job's
// completed pages in creation order.
func (s *PageStorage) GetIssueSummaries(ctx context.Context, jobID string) ([]*models.IssueSummary, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT issue_counts FROM scan_pages
		WHERE job_id = ? AND status = ? AND issue_counts IS NOT NULL
		ORDER BY created_at ASC, id ASC`,
		jobID, string(models.PageStatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to load issue summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.IssueSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var summary models.IssueSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			return nil, fmt.Errorf("failed to parse issue summary: %w", err)
		}
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}

const seoMetricColumns = `sm.id, sm.title, sm.meta_description, sm.canonical, sm.h1, sm.robots_txt_blocked, sm.schema_org, sm.score, sm.json_ld_score, sm.json_ld_types, sm.json_ld_issues, sm.html_structure_score, sm.html_structure_issues`

const linkMetricColumns = `lm.id, lm.internal_links, lm.external_links, lm.utm_params, lm.broken_links, lm.redirects`

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

func scanPage(row rowScanner) (*models.Page, error) {
	var page models.Page
	var status string
	var httpStatus sql.NullInt64
	var loadTime sql.NullInt64
	var counts, deviceVariant sql.NullString
	var createdAt int64

	err := row.Scan(&page.ID, &page.JobID, &page.URL, &status,
		&httpStatus, &loadTime, &counts, &deviceVariant, &createdAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan page row: %w", err)
	}

	page.Status = models.PageStatus(status)
	page.HTTPStatus = int(httpStatus.Int64)
	page.LoadTimeMs = loadTime.Int64
	page.DeviceVariant = models.DeviceVariant(deviceVariant.String)
	page.CreatedAt = time.Unix(createdAt, 0)

	if counts.Valid && counts.String != "" {
		var summary models.IssueSummary
		if err := json.Unmarshal([]byte(counts.String), &summary); err != nil {
			return nil, fmt.Errorf("failed to parse issue counts: %w", err)
		}
		page.IssueCounts = &summary
	}
	return &page, nil
}

func scanPageWithMetrics(row rowScanner) (*models.PageWithMetrics, error) {
	var page models.PageWithMetrics
	var status string
	var httpStatus, loadTime sql.NullInt64
	var counts, deviceVariant sql.NullString
	var createdAt int64

	var seoID, title, metaDesc, canonical, h1, schemaOrg sql.NullString
	var robotsBlocked, score, jsonLdScore, structScore sql.NullInt64
	var jsonLdTypes, jsonLdIssues, structIssues sql.NullString

	var linkID sql.NullString
	var internalLinks, externalLinks, brokenLinks, redirects sql.NullInt64
	var utmParams sql.NullString

	err := row.Scan(&page.ID, &page.JobID, &page.URL, &status,
		&httpStatus, &loadTime, &counts, &deviceVariant, &createdAt,
		&seoID, &title, &metaDesc, &canonical, &h1, &robotsBlocked, &schemaOrg,
		&score, &jsonLdScore, &jsonLdTypes, &jsonLdIssues, &structScore, &structIssues,
		&linkID, &internalLinks, &externalLinks, &utmParams, &brokenLinks, &redirects)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan page join: %w", err)
	}

	page.Status = models.PageStatus(status)
	page.HTTPStatus = int(httpStatus.Int64)
	page.LoadTimeMs = loadTime.Int64
	page.DeviceVariant = models.DeviceVariant(deviceVariant.String)
	page.CreatedAt = time.Unix(createdAt, 0)
	if counts.Valid && counts.String != "" {
		var summary models.IssueSummary
		if err := json.Unmarshal([]byte(counts.String), &summary); err != nil {
			return nil, fmt.Errorf("failed to parse issue counts: %w", err)
		}
		page.IssueCounts = &summary
	}

	if seoID.Valid {
		seo := &models.SeoMetrics{
			ID:                 seoID.String,
			PageID:             page.ID,
			Title:              title.String,
			MetaDescription:    metaDesc.String,
			Canonical:          canonical.String,
			H1:                 h1.String,
			RobotsBlocked:      robotsBlocked.Int64 != 0,
			Score:              int(score.Int64),
			JSONLDScore:        int(jsonLdScore.Int64),
			HTMLStructureScore: int(structScore.Int64),
		}
		if schemaOrg.Valid && schemaOrg.String != "" {
			seo.SchemaOrg = json.RawMessage(schemaOrg.String)
		}
		if jsonLdTypes.Valid && jsonLdTypes.String != "" {
			if err := json.Unmarshal([]byte(jsonLdTypes.String), &seo.JSONLDTypes); err != nil {
				return nil, fmt.Errorf("failed to parse json-ld types: %w", err)
			}
		}
		if jsonLdIssues.Valid && jsonLdIssues.String != "" {
			seo.JSONLDIssues = json.RawMessage(jsonLdIssues.String)
		}
		if structIssues.Valid && structIssues.String != "" {
			seo.HTMLStructureIssues = json.RawMessage(structIssues.String)
		}
		page.Seo = seo
	}

	if linkID.Valid {
		links := &models.LinkMetrics{
			ID:            linkID.String,
			PageID:        page.ID,
			InternalLinks: int(internalLinks.Int64),
			ExternalLinks: int(externalLinks.Int64),
			BrokenLinks:   int(brokenLinks.Int64),
			Redirects:     int(redirects.Int64),
		}
		if utmParams.Valid && utmParams.String != "" {
			links.UTMParams = json.RawMessage(utmParams.String)
		}
		page.Links = links
	}

	return &page, nil
}

func issueCountsJSON(summary *models.IssueSummary) (sql.NullString, error) {
	if summary == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to serialize issue counts: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// nullJSON serializes a slice or map column, storing NULL when empty.
// Marshal failures degrade to NULL; the typed values stored here cannot
// carry unmarshalable content.
func nullJSON(v any) sql.NullString {
	switch val := v.(type) {
	case nil:
		return sql.NullString{}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}
		}
	case map[string]any:
		if len(val) == 0 {
			return sql.NullString{}
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
