// Package api provides the optional admin REST API: health/stats and
// per-route open/close/crush/freeze/unfreeze plus live-pair/live-outer
// introspection, via a Gin-based HTTP server, per SPEC_FULL §11/§12.
//
// Security note: do not expose the API to untrusted networks without
// authentication (see middleware.RequireAPIKey).
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hydracrusher/crusher/internal/api/handlers"
	"github.com/hydracrusher/crusher/internal/api/middleware"
	"github.com/hydracrusher/crusher/internal/config"
	"github.com/hydracrusher/crusher/internal/crusher"
	"github.com/hydracrusher/crusher/internal/metrics"
)

// Server is the admin REST API server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, registry *crusher.Registry, stats *metrics.Stats) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(cfg, logger, registry, stats)
	RegisterRoutes(engine, h, cfg)

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
