package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// TaskEventStorage implements the append-only task event log over SQLite.
// Row ids come from AUTOINCREMENT so they are strictly increasing across
// the life of the database.
type TaskEventStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewTaskEventStorage creates a new task event storage instance
func NewTaskEventStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.TaskEventStorage {
	return &TaskEventStorage{
		db:     db,
		logger: logger,
	}
}

// AppendTaskEvent inserts one event and fills in its assigned id
func (s *TaskEventStorage) AppendTaskEvent(ctx context.Context, event *models.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var payloadJSON sql.NullString
	if len(event.Payload) > 0 {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to serialize event payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(raw), Valid: true}
	}

	err := s.db.db.QueryRowContext(ctx, `
		INSERT INTO task_events (job_id, type, payload, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		event.JobID, string(event.Type), payloadJSON, event.CreatedAt.Unix(),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to append task event: %w", err)
	}
	return nil
}

// GetRecentTaskEvents returns the last N events in chronological order
func (s *TaskEventStorage) GetRecentTaskEvents(ctx context.Context, limit int) ([]*models.TaskEvent, error) {
	if limit <= 0 {
		limit = 25
	}

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, job_id, type, payload, created_at FROM task_events
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent events: %w", err)
	}
	defer rows.Close()

	events, err := collectTaskEvents(rows)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query, reverse into chronological order
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// GetTaskEventsByJob returns a job's events in chronological order
func (s *TaskEventStorage) GetTaskEventsByJob(ctx context.Context, jobID string, limit int) ([]*models.TaskEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, job_id, type, payload, created_at FROM task_events
		WHERE job_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load job events: %w", err)
	}
	defer rows.Close()

	return collectTaskEvents(rows)
}

func collectTaskEvents(rows *sql.Rows) ([]*models.TaskEvent, error) {
	var events []*models.TaskEvent
	for rows.Next() {
		var event models.TaskEvent
		var eventType string
		var payload sql.NullString
		var createdAt int64
		if err := rows.Scan(&event.ID, &event.JobID, &eventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan task event: %w", err)
		}
		event.Type = models.TaskEventType(eventType)
		event.CreatedAt = time.Unix(createdAt, 0)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &event.Payload); err != nil {
				return nil, fmt.Errorf("failed to parse event payload: %w", err)
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
