// Package events implements the durable task-event bus: every job progress
// event is appended to storage first, then fanned out to in-process
// subscribers over bounded channels.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// subscriberBufferSize bounds each subscriber channel. A subscriber that
// falls this far behind loses its oldest buffered events and gets a single
// lagged marker instead.
const subscriberBufferSize = 64

type subscriber struct {
	ch     chan *models.TaskEvent
	lagged bool
}

// TaskEventService is the concrete bus over TaskEventStorage
type TaskEventService struct {
	storage interfaces.TaskEventStorage
	logger  arbor.ILogger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewTaskEventService creates the bus on top of the persisted event log
func NewTaskEventService(storage interfaces.TaskEventStorage, logger arbor.ILogger) interfaces.TaskEventService {
	return &TaskEventService{
		storage:     storage,
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Record appends the event and broadcasts it. The insert happening first
// keeps the persisted log the source of truth: a subscriber that misses the
// live delivery can replay from storage.
func (s *TaskEventService) Record(ctx context.Context, jobID string, eventType models.TaskEventType, payload map[string]any) error {
	event := &models.TaskEvent{
		JobID:     jobID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := s.storage.AppendTaskEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record task event: %w", err)
	}

	s.broadcast(event)
	return nil
}

// broadcast delivers to every subscriber without ever blocking the caller.
// On a full buffer the oldest event is discarded to make room; the
// subscriber is flagged so its next successful delivery is preceded by a
// lagged marker.
func (s *TaskEventService) broadcast(event *models.TaskEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subscribers {
		if sub.lagged {
			marker := &models.TaskEvent{
				JobID:     event.JobID,
				Type:      models.TaskEventLagged,
				CreatedAt: time.Now(),
			}
			select {
			case sub.ch <- marker:
				sub.lagged = false
			default:
				// Still full, drop one more and stay lagged
				s.dropOldest(sub)
				continue
			}
		}

		select {
		case sub.ch <- event:
		default:
			s.dropOldest(sub)
			sub.lagged = true
			select {
			case sub.ch <- event:
			default:
			}
			s.logger.Warn().
				Str("job_id", event.JobID).
				Str("type", string(event.Type)).
				Msg("Slow task-event subscriber dropped an event")
		}
	}
}

func (s *TaskEventService) dropOldest(sub *subscriber) {
	select {
	case <-sub.ch:
	default:
	}
}

// Subscribe registers a listener. The returned cancel function is
// idempotent and closes the channel.
func (s *TaskEventService) Subscribe() (<-chan *models.TaskEvent, func()) {
	sub := &subscriber{ch: make(chan *models.TaskEvent, subscriberBufferSize)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subscribers[sub]; ok {
				delete(s.subscribers, sub)
				close(sub.ch)
			}
			s.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// GetRecent returns the most recent persisted events in chronological order
func (s *TaskEventService) GetRecent(ctx context.Context, limit int) ([]*models.TaskEvent, error) {
	return s.storage.GetRecentTaskEvents(ctx, limit)
}

// Close detaches and closes every subscriber channel
func (s *TaskEventService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for sub := range s.subscribers {
		close(sub.ch)
	}
	s.subscribers = make(map[*subscriber]struct{})
	return nil
}
