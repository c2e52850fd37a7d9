package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/FillingVoid7/PeerAid-sub001/internal/configuration"
	"github.com/FillingVoid7/PeerAid-sub001/internal/observability"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorGroup := router.Group("/monitor/api")
	{
		// GET /monitor/api/stats - hub statistics
		monitorGroup.GET("/stats", container.ChatHandler.GetMonitor)
	}

	router.GET("/metrics", gin.WrapH(observability.Handler()))
}
