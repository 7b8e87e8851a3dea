package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/auth"
)

// NewRouter builds the echo instance serving the game API, /healthz, and
// /metrics.
//
// Precondition: h, v, gatherer, and logger must be non-nil.
func NewRouter(h *Handler, v *auth.Verifier, cookieName string, gatherer prometheus.Gatherer, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(RequestLogger(logger))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("64K"))

	e.GET("/healthz", h.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api/game", Session(v, cookieName))
	api.POST("/horse/start", h.StartRace)
	api.POST("/horse/action", h.ApplyItem)
	api.POST("/horse/finish", h.FinishRace)
	api.GET("/horse/race/:id", h.GetRace)
	api.POST("/color/round", h.ColorRound)
	api.POST("/tree/round", h.TreeRound)
	return e
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.health.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "store unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}
