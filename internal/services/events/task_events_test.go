package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/models"
)

// memoryEventStorage is an in-test TaskEventStorage backed by a slice
type memoryEventStorage struct {
	mu     sync.Mutex
	nextID int64
	events []*models.TaskEvent
}

func (m *memoryEventStorage) AppendTaskEvent(_ context.Context, event *models.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	event.ID = m.nextID
	copied := *event
	m.events = append(m.events, &copied)
	return nil
}

func (m *memoryEventStorage) GetRecentTaskEvents(_ context.Context, limit int) ([]*models.TaskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := len(m.events) - limit
	if start < 0 {
		start = 0
	}
	return append([]*models.TaskEvent{}, m.events[start:]...), nil
}

func (m *memoryEventStorage) GetTaskEventsByJob(_ context.Context, jobID string, limit int) ([]*models.TaskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TaskEvent
	for _, e := range m.events {
		if e.JobID == jobID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestBus() (*TaskEventService, *memoryEventStorage) {
	storage := &memoryEventStorage{}
	bus := NewTaskEventService(storage, common.GetLogger()).(*TaskEventService)
	return bus, storage
}

func TestRecord_PersistsBeforeBroadcast(t *testing.T) {
	bus, storage := newTestBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	require.NoError(t, bus.Record(context.Background(), "job_1", models.TaskEventStarted, map[string]any{"mode": "site"}))

	select {
	case event := <-ch:
		assert.Equal(t, models.TaskEventStarted, event.Type)
		assert.Equal(t, "job_1", event.JobID)
		assert.NotZero(t, event.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast event")
	}

	persisted, err := storage.GetRecentTaskEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
}

func TestRecord_OrderPreservedPerSubscriber(t *testing.T) {
	bus, _ := newTestBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Record(ctx, "job_1", models.TaskEventPageCompleted, map[string]any{"n": i}))
	}

	var lastID int64
	for i := 0; i < 10; i++ {
		event := <-ch
		assert.Greater(t, event.ID, lastID)
		lastID = event.ID
	}
}

func TestBroadcast_SlowSubscriberDropsOldestAndMarksLagged(t *testing.T) {
	bus, _ := newTestBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	ctx := context.Background()
	// Overflow the buffer without draining
	for i := 0; i < subscriberBufferSize+10; i++ {
		require.NoError(t, bus.Record(ctx, "job_1", models.TaskEventPageCompleted, map[string]any{"n": i}))
	}

	sawLagged := false
	received := 0
drain:
	for {
		select {
		case event := <-ch:
			received++
			if event.Type == models.TaskEventLagged {
				sawLagged = true
			}
		default:
			break drain
		}
	}

	assert.True(t, sawLagged, "expected a lagged marker after overflow")
	assert.LessOrEqual(t, received, subscriberBufferSize)
}

func TestBroadcast_OneSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	bus, _ := newTestBus()
	defer bus.Close()

	slow, cancelSlow := bus.Subscribe()
	defer cancelSlow()
	_ = slow // never drained

	fast, cancelFast := bus.Subscribe()
	defer cancelFast()

	ctx := context.Background()
	total := subscriberBufferSize * 2
	done := make(chan struct{})
	got := 0
	go func() {
		defer close(done)
		for range fast {
			got++
			if got == total {
				return
			}
		}
	}()

	for i := 0; i < total; i++ {
		require.NoError(t, bus.Record(ctx, "job_1", models.TaskEventPageCompleted, nil))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fast subscriber stalled, received %d of %d", got, total)
	}
}

func TestSubscribe_CancelIsIdempotent(t *testing.T) {
	bus, _ := newTestBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestClose_ClosesSubscribers(t *testing.T) {
	bus, _ := newTestBus()

	ch, _ := bus.Subscribe()
	require.NoError(t, bus.Close())

	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields a closed channel
	late, _ := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestGetRecent_ReturnsChronological(t *testing.T) {
	bus, _ := newTestBus()
	defer bus.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Record(ctx, fmt.Sprintf("job_%d", i), models.TaskEventQueued, nil))
	}

	events, err := bus.GetRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "job_2", events[0].JobID)
	assert.Equal(t, "job_4", events[2].JobID)
}
