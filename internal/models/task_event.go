package models

import "time"

// TaskEventType enumerates the lifecycle events recorded for a job
type TaskEventType string

const (
	TaskEventQueued        TaskEventType = "queued"
	TaskEventStarted       TaskEventType = "started"
	TaskEventPageCompleted TaskEventType = "page_completed"
	TaskEventCompleted     TaskEventType = "completed"
	TaskEventFailed        TaskEventType = "failed"
	TaskEventCancelled     TaskEventType = "cancelled"
	// TaskEventLagged is injected into a subscriber stream when events were
	// dropped because the subscriber fell behind. It is never persisted.
	TaskEventLagged TaskEventType = "lagged"
)

// TaskEvent is one append-only progress record for a job. Events are
// totally ordered by (CreatedAt, ID); ID is a monotonic row id so
// subscribers can detect gaps.
type TaskEvent struct {
	ID        int64          `json:"id"`
	JobID     string         `json:"jobId"`
	Type      TaskEventType  `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
