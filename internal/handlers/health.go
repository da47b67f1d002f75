package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mindguard/signaling-server/internal/presence"
)

// HealthResponse is the body of the health endpoint: a direct
// snapshot of registry size.
type HealthResponse struct {
	Status      string `json:"status"`
	ActiveRooms int    `json:"activeRooms"`
	ActiveUsers int    `json:"activeUsers"`
}

func Health(registry *presence.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, users := registry.Counts()
		c.JSON(http.StatusOK, HealthResponse{
			Status:      "healthy",
			ActiveRooms: rooms,
			ActiveUsers: users,
		})
	}
}
