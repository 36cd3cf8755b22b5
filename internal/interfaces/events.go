package interfaces

import (
	"context"

	"github.com/ternarybob/seoscan/internal/models"
)

// TaskEventService is the durable pub/sub bus for job progress events.
// Record persists the event before broadcasting so subscribers joining later
// can replay from storage; broadcast never blocks the recording goroutine.
type TaskEventService interface {
	// Record appends an event for a job and fans it out to subscribers
	Record(ctx context.Context, jobID string, eventType models.TaskEventType, payload map[string]any) error

	// Subscribe returns a channel of events and a cancel function. The
	// channel is bounded; a subscriber that falls behind loses the oldest
	// buffered events and receives a lagged marker.
	Subscribe() (<-chan *models.TaskEvent, func())

	// GetRecent returns the most recent persisted events, newest first
	GetRecent(ctx context.Context, limit int) ([]*models.TaskEvent, error)

	Close() error
}
