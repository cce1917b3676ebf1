package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"safety-service/internal/config"
	"safety-service/internal/logging"
)

// NewRouter wires routes. Extra middleware, such as the throttle, runs
// before identity resolution on every /api route.
func NewRouter(h *Handler, logger *logging.Logger, cfg config.Config, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(cfg.API.BasePath)
	api.Use(extra...)
	api.Use(IdentityMiddleware(cfg.Security.AdminAPIKey))
	{
		// Tourists
		api.POST("/tourists", h.UpsertProfile)
		api.GET("/tourists/me", h.GetMyProfile)
		api.GET("/tourists/me/safety-score", h.GetMySafetyScore)
		api.GET("/tourists/:code", RequireAdmin(), h.GetProfileByCode)

		// Risk zones
		api.GET("/risk-zones", h.ListRiskZones)
		api.POST("/risk-zones", RequireAdmin(), h.CreateRiskZone)

		// Locations
		api.GET("/locations/zones", h.ListActiveZones)
		api.POST("/locations", h.IngestLocation)

		// Incidents
		api.POST("/incidents/panic", h.TriggerPanic)

		// Alerts
		api.GET("/alerts", h.ListAlerts)
		api.POST("/alerts/:id/acknowledge", RequireAdmin(), h.AcknowledgeAlert)
		api.POST("/alerts/:id/resolve", RequireAdmin(), h.ResolveAlert)
		api.GET("/alerts/:id/dispatches", RequireAdmin(), h.ListDispatches)
		api.GET("/ws/alerts", RequireAdmin(), h.AlertFeed)
	}
	return r
}
