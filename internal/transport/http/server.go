// Package http provides the HTTP server for the tracer.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aacamara/cscx-mvp6-sub017/internal/tracer"
	v1 "github.com/aacamara/cscx-mvp6-sub017/internal/transport/http/v1"
	"github.com/aacamara/cscx-mvp6-sub017/internal/transport/ws"
)

// NewServer creates and configures the HTTP server exposing the tracer's
// query surface, the SSE event stream, and the WebSocket fan-out.
func NewServer(tr *tracer.Tracer, hub *ws.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(tr)
	v1Handler.RegisterRoutes(e)

	wsServer := ws.NewServer(hub)
	e.GET("/ws/events", wsServer.HandleWebSocket)

	return e
}
