// Package handlers implements the admin REST API endpoint handlers: health
// and process/relay statistics, plus per-route open/close/crush/freeze/
// unfreeze and live-pair/live-outer introspection.
package handlers

import (
	"log/slog"
	"time"

	"github.com/hydracrusher/crusher/internal/config"
	"github.com/hydracrusher/crusher/internal/crusher"
	"github.com/hydracrusher/crusher/internal/metrics"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	registry *crusher.Registry
	stats    *metrics.Stats
}

// New creates a new Handler wired to the given route registry and shared
// stats collector.
func New(cfg *config.Config, logger *slog.Logger, registry *crusher.Registry, stats *metrics.Stats) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
		registry:  registry,
		stats:     stats,
	}
}

// routeConfig looks up a route's static configuration by name.
func (h *Handler) routeConfig(name string) (config.RouteConfig, bool) {
	for _, r := range h.cfg.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return config.RouteConfig{}, false
}
