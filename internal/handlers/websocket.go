package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mindguard/signaling-server/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by the OriginFilter middleware.
		return true
	},
}

// ServeWS upgrades the request and hands the connection to the hub.
// The connection gets a fresh id for its lifetime; ids are never
// reused after disconnect.
func ServeWS(hub *transport.Hub, dispatcher transport.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "error", err)
			return
		}

		connID := uuid.New().String()
		slog.Info("user connected", "conn", connID)

		transport.NewClient(connID, hub, conn, dispatcher).Run()
	}
}
