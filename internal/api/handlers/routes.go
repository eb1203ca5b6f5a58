package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hydracrusher/crusher/internal/api/models"
	"github.com/hydracrusher/crusher/internal/crusher"
)

func notFound(c *gin.Context, name string) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "no such route: " + name})
}

// ListRoutes reports the lifecycle state of every configured route.
func (h *Handler) ListRoutes(c *gin.Context) {
	out := make([]models.RouteStatusResponse, 0, len(h.registry.Names()))
	for _, name := range h.registry.Names() {
		p, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		rc, _ := h.routeConfig(name)
		out = append(out, models.RouteStatusResponse{
			Name:     name,
			Protocol: string(rc.Protocol),
			Open:     p.IsOpen(),
			Frozen:   p.IsFrozen(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// RouteStatus reports one route's lifecycle state.
func (h *Handler) RouteStatus(c *gin.Context) {
	name := c.Param("name")
	p, ok := h.registry.Get(name)
	if !ok {
		notFound(c, name)
		return
	}
	rc, _ := h.routeConfig(name)
	c.JSON(http.StatusOK, models.RouteStatusResponse{
		Name:     name,
		Protocol: string(rc.Protocol),
		Open:     p.IsOpen(),
		Frozen:   p.IsFrozen(),
	})
}

func (h *Handler) withRoute(c *gin.Context, op func(crusher.Proxy) error) {
	name := c.Param("name")
	p, ok := h.registry.Get(name)
	if !ok {
		notFound(c, name)
		return
	}
	if err := op(p); err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// CrushRoute closes every live flow on the named route and reopens it.
func (h *Handler) CrushRoute(c *gin.Context) {
	h.withRoute(c, crusher.Proxy.Crush)
}

// CloseRoute closes the named route.
func (h *Handler) CloseRoute(c *gin.Context) {
	h.withRoute(c, crusher.Proxy.Close)
}

// OpenRoute opens the named route.
func (h *Handler) OpenRoute(c *gin.Context) {
	h.withRoute(c, crusher.Proxy.Open)
}

// FreezeRoute suspends traffic on the named route.
func (h *Handler) FreezeRoute(c *gin.Context) {
	h.withRoute(c, crusher.Proxy.Freeze)
}

// UnfreezeRoute resumes traffic on the named route.
func (h *Handler) UnfreezeRoute(c *gin.Context) {
	h.withRoute(c, crusher.Proxy.Unfreeze)
}

// RoutePairs reports every live TCP pair for a TCP route.
func (h *Handler) RoutePairs(c *gin.Context) {
	name := c.Param("name")
	p, ok := h.registry.Get(name)
	if !ok {
		notFound(c, name)
		return
	}
	tc, ok := p.(*crusher.TCP)
	if !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "route is not TCP"})
		return
	}
	snap := tc.Snapshot()
	out := make([]models.PairResponse, 0, len(snap))
	for _, p := range snap {
		out = append(out, models.PairResponse{
			ID:        p.ID,
			InnerAddr: p.InnerAddr.String(),
			OuterAddr: p.OuterAddr.String(),
			State:     p.State.String(),
			Frozen:    p.Frozen,
		})
	}
	c.JSON(http.StatusOK, out)
}

// RouteOuters reports every live UDP Outer for a UDP route.
func (h *Handler) RouteOuters(c *gin.Context) {
	name := c.Param("name")
	p, ok := h.registry.Get(name)
	if !ok {
		notFound(c, name)
		return
	}
	uc, ok := p.(*crusher.UDP)
	if !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "route is not UDP"})
		return
	}
	snap := uc.Snapshot()
	out := make([]models.OuterResponse, 0, len(snap))
	for _, o := range snap {
		out = append(out, models.OuterResponse{Source: o.Source.String(), IdleMs: o.Idle.Milliseconds()})
	}
	c.JSON(http.StatusOK, out)
}
