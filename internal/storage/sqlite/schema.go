package sqlite

const schemaSQL = `
-- Scan jobs
CREATE TABLE IF NOT EXISTS scan_jobs (
	id TEXT PRIMARY KEY,
	target_url TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	pages_total INTEGER NOT NULL DEFAULT 0,
	pages_finished INTEGER NOT NULL DEFAULT 0,
	issues_summary TEXT,
	options TEXT,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_scan_jobs_status ON scan_jobs(status);
CREATE INDEX IF NOT EXISTS idx_scan_jobs_created_at ON scan_jobs(created_at);

-- Pages scanned for a job
CREATE TABLE IF NOT EXISTS scan_pages (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES scan_jobs(id),
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	http_status INTEGER,
	load_time_ms INTEGER,
	issue_counts TEXT,
	device_variant TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_pages_job_id ON scan_pages(job_id);

-- Per-page SEO extraction (at most one row per page)
CREATE TABLE IF NOT EXISTS seo_metrics (
	id TEXT PRIMARY KEY,
	page_id TEXT NOT NULL UNIQUE REFERENCES scan_pages(id),
	title TEXT,
	meta_description TEXT,
	canonical TEXT,
	h1 TEXT,
	robots_txt_blocked INTEGER NOT NULL DEFAULT 0,
	schema_org TEXT,
	score INTEGER NOT NULL DEFAULT 0,
	json_ld_score INTEGER NOT NULL DEFAULT 0,
	json_ld_types TEXT,
	json_ld_issues TEXT,
	html_structure_score INTEGER NOT NULL DEFAULT 0,
	html_structure_issues TEXT
);

-- Per-page link inventory (at most one row per page)
CREATE TABLE IF NOT EXISTS link_metrics (
	id TEXT PRIMARY KEY,
	page_id TEXT NOT NULL UNIQUE REFERENCES scan_pages(id),
	internal_links INTEGER NOT NULL DEFAULT 0,
	external_links INTEGER NOT NULL DEFAULT 0,
	utm_params TEXT,
	broken_links INTEGER NOT NULL DEFAULT 0,
	redirects INTEGER NOT NULL DEFAULT 0
);

-- Analytics calls detected or fired per page
CREATE TABLE IF NOT EXISTS tracking_events (
	id TEXT PRIMARY KEY,
	page_id TEXT NOT NULL REFERENCES scan_pages(id),
	element TEXT,
	"trigger" TEXT,
	event_name TEXT,
	platform TEXT NOT NULL,
	device_variant TEXT,
	payload TEXT,
	status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tracking_events_page_id ON tracking_events(page_id);

-- Append-only job progress log
CREATE TABLE IF NOT EXISTS task_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL REFERENCES scan_jobs(id),
	type TEXT NOT NULL,
	payload TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_events_job_id ON task_events(job_id);
`

// InitSchema initializes the database schema
func (s *SQLiteDB) InitSchema() error {
	_, err := s.db.Exec(schemaSQL)
	if err != nil {
		return err
	}
	s.logger.Info().Msg("Database schema initialized")
	return nil
}
