package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"laneduel/internal/logger"
	"laneduel/internal/ws"
)

// Handler собирает зависимости HTTP-слоя.
type Handler struct {
	Hub           *ws.Hub
	AllowedOrigin string
	Version       string
}

func New(hub *ws.Hub, allowedOrigin, version string) *Handler {
	return &Handler{Hub: hub, AllowedOrigin: allowedOrigin, Version: version}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.Version})
}

// WS upgrades the connection and hands it to the hub. Everything after the
// upgrade is message-driven; there is no auth handshake before create/join.
func (h *Handler) WS(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if h.AllowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == h.AllowedOrigin
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "error", err)
		return
	}

	go h.Hub.Accept(conn)
}
