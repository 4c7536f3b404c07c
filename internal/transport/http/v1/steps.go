package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

// StartStep appends a step to a run and starts its duration timer.
// POST /v1/runs/:run_id/steps
func (h *Handler) StartStep(c echo.Context) error {
	var params domain.StepParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if params.Type == "" || params.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type and name are required"})
	}

	step := h.tracer.StartStep(c.Request().Context(), c.Param("run_id"), params)
	if step == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusCreated, step)
}

// EndStep completes a previously started step.
// POST /v1/steps/:step_id/end
func (h *Handler) EndStep(c echo.Context) error {
	var params domain.EndStepParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	step := h.tracer.EndStep(c.Request().Context(), c.Param("step_id"), params)
	if step == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "step not found"})
	}
	return c.JSON(http.StatusOK, step)
}

// LogStep records a complete step in one call.
// POST /v1/runs/:run_id/steps/log
func (h *Handler) LogStep(c echo.Context) error {
	var params domain.LogStepParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if params.Type == "" || params.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type and name are required"})
	}

	step := h.tracer.LogStep(c.Request().Context(), c.Param("run_id"), params)
	if step == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusCreated, step)
}
