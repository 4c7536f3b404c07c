// Package v1 provides HTTP handlers for the tracer's public query surface.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aacamara/cscx-mvp6-sub017/internal/tracer"
)

// Handler handles HTTP requests.
type Handler struct {
	tracer *tracer.Tracer
}

// NewHandler creates a new handler.
func NewHandler(tr *tracer.Tracer) *Handler {
	return &Handler{tracer: tr}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Run lifecycle
	e.POST("/v1/runs", h.StartRun)
	e.POST("/v1/runs/:run_id/end", h.EndRun)
	e.POST("/v1/runs/:run_id/status", h.UpdateStatus)

	// Step recording
	e.POST("/v1/runs/:run_id/steps", h.StartStep)
	e.POST("/v1/runs/:run_id/steps/log", h.LogStep)
	e.POST("/v1/steps/:step_id/end", h.EndStep)

	// Queries
	e.GET("/v1/runs/active", h.GetActiveRuns)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/tree", h.GetRunTree)
	e.GET("/v1/runs/:run_id/visualization", h.GetTraceVisualization)
	e.GET("/v1/users/:user_id/runs", h.GetUserRuns)
	e.GET("/v1/stats", h.GetStats)

	// Maintenance
	e.POST("/v1/cleanup", h.Cleanup)

	// Live events
	e.GET("/v1/events/stream", h.StreamEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
