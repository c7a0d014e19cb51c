package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"laneduel/internal/http/handlers"
	"laneduel/internal/http/middleware"
	"laneduel/internal/ws"
)

// RegisterRoutes wires the public surface: the websocket endpoint, the
// liveness probe and the Prometheus scrape target.
func RegisterRoutes(r *gin.Engine, hub *ws.Hub, allowedOrigin, version string) {
	h := handlers.New(hub, allowedOrigin, version)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", middleware.RateLimit(), h.WS)
}
