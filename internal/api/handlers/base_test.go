package handlers_test

import (
	"github.com/gin-gonic/gin"

	"github.com/hydracrusher/crusher/internal/api/handlers"
)

func setupTestRouter(h *handlers.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1")
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

	return r
}
