package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

// StreamEvents streams live trace events via SSE.
// GET /v1/events/stream
//
// Delivery is at-most-once: events fired before the subscription attached are
// never replayed. Catching up after a disconnect requires a fresh run query.
func (h *Handler) StreamEvents(c echo.Context) error {
	ctx := c.Request().Context()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	events, cancel := h.tracer.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := sendSSEEvent(c, event); err != nil {
				return err
			}
		}
	}
}

// sendSSEEvent sends a single event in SSE format.
func sendSSEEvent(c echo.Context, event domain.TraceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
		return err
	}

	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
