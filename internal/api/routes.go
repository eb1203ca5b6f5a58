package api

import (
	"github.com/gin-gonic/gin"

	"github.com/hydracrusher/crusher/internal/api/handlers"
	"github.com/hydracrusher/crusher/internal/api/middleware"
	"github.com/hydracrusher/crusher/internal/config"
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	api := r.Group("/api/v1")

	// Optional API key protection.
	if cfg != nil && cfg.API.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/routes", h.ListRoutes)
	api.GET("/routes/:name", h.RouteStatus)
	api.POST("/routes/:name/open", h.OpenRoute)
	api.POST("/routes/:name/close", h.CloseRoute)
	api.POST("/routes/:name/crush", h.CrushRoute)
	api.POST("/routes/:name/freeze", h.FreezeRoute)
	api.POST("/routes/:name/unfreeze", h.UnfreezeRoute)
	api.GET("/routes/:name/pairs", h.RoutePairs)
	api.GET("/routes/:name/outers", h.RouteOuters)
}
