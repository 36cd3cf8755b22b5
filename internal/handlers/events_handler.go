package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// recentEventsOnConnect is how many persisted events prime a new stream
const recentEventsOnConnect = 25

// ProgressHandler streams task events to SSE clients
type ProgressHandler struct {
	events interfaces.TaskEventService
	logger arbor.ILogger
}

// NewProgressHandler creates a new progress stream handler
func NewProgressHandler(events interfaces.TaskEventService, logger arbor.ILogger) *ProgressHandler {
	return &ProgressHandler{
		events: events,
		logger: logger,
	}
}

// StreamHandler handles GET /api/scans/progress/live. The first frame is an
// init message carrying recent events in chronological order; each live event
// follows as its own frame. The stream closes when the client disconnects.
func (h *ProgressHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading the recent set so no event falls in the gap
	ch, cancel := h.events.Subscribe()
	defer cancel()

	// GetRecent is already chronological, oldest of the window first
	recent, err := h.events.GetRecent(r.Context(), recentEventsOnConnect)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load recent task events")
	}
	if recent == nil {
		recent = []*models.TaskEvent{}
	}

	h.sendFrame(w, flusher, map[string]interface{}{
		"type":   "init",
		"events": recent,
	})

	pingTicker := time.NewTicker(15 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, open := <-ch:
			if !open {
				return
			}
			h.sendFrame(w, flusher, map[string]interface{}{
				"type":  "event",
				"event": event,
			})

		case <-pingTicker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (h *ProgressHandler) sendFrame(w http.ResponseWriter, flusher http.Flusher, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal SSE frame")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
