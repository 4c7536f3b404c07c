package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

// StartRun creates a new run.
// POST /v1/runs
func (h *Handler) StartRun(c echo.Context) error {
	var params domain.StartRunParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if params.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}
	if params.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	run := h.tracer.StartRun(c.Request().Context(), params)
	return c.JSON(http.StatusCreated, run)
}

// EndRun finalizes a run.
// POST /v1/runs/:run_id/end
func (h *Handler) EndRun(c echo.Context) error {
	var params domain.EndRunParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !params.Status.Terminal() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "status must be completed or failed"})
	}

	run := h.tracer.EndRun(c.Request().Context(), c.Param("run_id"), params)
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}

// UpdateStatus applies a non-terminal status change.
// POST /v1/runs/:run_id/status
func (h *Handler) UpdateStatus(c echo.Context) error {
	var req struct {
		Status   domain.RunStatus `json:"status"`
		Metadata map[string]any   `json:"metadata,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !req.Status.Valid() || req.Status.Terminal() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "status must be running or waiting_approval"})
	}

	run := h.tracer.UpdateStatus(c.Request().Context(), c.Param("run_id"), req.Status, req.Metadata)
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}

// GetRun returns a run by id, from memory or the durable store.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run := h.tracer.GetRun(c.Request().Context(), c.Param("run_id"))
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}

// GetActiveRuns returns all currently active runs.
// GET /v1/runs/active
func (h *Handler) GetActiveRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"runs": h.tracer.GetActiveRuns()})
}

// GetUserRuns returns a user's runs, newest first.
// GET /v1/users/:user_id/runs?limit=
func (h *Handler) GetUserRuns(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = parsed
	}
	runs := h.tracer.GetUserRuns(c.Request().Context(), c.Param("user_id"), limit)
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}

// GetRunTree returns a run with its full descendant tree.
// GET /v1/runs/:run_id/tree
func (h *Handler) GetRunTree(c echo.Context) error {
	tree := h.tracer.GetRunTree(c.Request().Context(), c.Param("run_id"))
	if tree == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, tree)
}

// GetTraceVisualization returns the node/edge projection of a run.
// GET /v1/runs/:run_id/visualization
func (h *Handler) GetTraceVisualization(c echo.Context) error {
	graph := h.tracer.GetTraceVisualization(c.Request().Context(), c.Param("run_id"))
	if graph == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, graph)
}

// GetStats returns aggregate trace statistics.
// GET /v1/stats
func (h *Handler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracer.GetStats(c.Request().Context()))
}

// Cleanup evicts old in-memory runs.
// POST /v1/cleanup
func (h *Handler) Cleanup(c echo.Context) error {
	var req struct {
		MaxRuns  int   `json:"max_runs"`
		MaxAgeMs int64 `json:"max_age_ms"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	removed := h.tracer.Cleanup(req.MaxRuns, time.Duration(req.MaxAgeMs)*time.Millisecond)
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}
