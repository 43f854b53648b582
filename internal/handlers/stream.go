package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/queue"
)

const eventBuffer = 64

// EventsHandler streams job state transitions over WebSocket
type EventsHandler struct {
	registry *queue.Registry
	logger   zerolog.Logger
}

// NewEventsHandler creates a job event stream handler
func NewEventsHandler(registry *queue.Registry, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		registry: registry,
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

// Upgrade rejects plain HTTP requests to the stream endpoint
func (h *EventsHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"error": "WebSocket upgrade required",
		"code":  "ERR_UPGRADE_REQUIRED",
	})
}

// Handle sends every job event as a JSON message until the client leaves.
// ?job_id= restricts the stream to one job. Slow clients lose events
// rather than stalling the workers.
func (h *EventsHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	jobID := c.Query("job_id")
	events := make(chan queue.Event, eventBuffer)
	unsubscribe := h.registry.Subscribe(h.relay(jobID, events))
	defer unsubscribe()

	h.logger.Info().Str("job_id", jobID).Msg("WebSocket connection established")

	// reader detects the close frame
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if jobID != "" {
		if job, ok := h.registry.Get(jobID); ok {
			if err := c.WriteJSON(queue.Event{Type: "job.snapshot", Job: job}); err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-closed:
			h.logger.Info().Msg("WebSocket connection closed")
			return
		case e := <-events:
			if err := c.WriteJSON(e); err != nil {
				h.logger.Warn().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

// relay forwards events for jobID (all jobs when empty) into events,
// dropping any that do not fit
func (h *EventsHandler) relay(jobID string, events chan<- queue.Event) func(queue.Event) {
	return func(e queue.Event) {
		if jobID != "" && e.Job.ID != jobID {
			return
		}
		select {
		case events <- e:
		default:
			h.logger.Warn().Int64("seq", e.Seq).Msg("Event stream client too slow, dropping event")
		}
	}
}
