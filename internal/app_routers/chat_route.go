package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/FillingVoid7/PeerAid-sub001/internal/configuration"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/chat/api")
	{
		chatRoute.GET("/conversations", container.ChatHandler.GetConversations)
		chatRoute.GET("/conversations/:conversationId/messages", container.ChatHandler.GetRoomMessages)
	}
}
