package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/FillingVoid7/PeerAid-sub001/internal/hub"
	"github.com/FillingVoid7/PeerAid-sub001/internal/repo"
)

// ChatHandler is the REST sidecar: reconciliation reads for clients that
// missed realtime events, plus the hub monitor.
type ChatHandler interface {
	GetConversations(c *gin.Context)
	GetRoomMessages(c *gin.Context)
	GetMonitor(c *gin.Context)
}

type chatHandler struct {
	conversations repo.ConversationRepository
	pipeline      *hub.Pipeline
	monitor       *hub.MonitorService
}

func NewChatHandler(conversations repo.ConversationRepository, pipeline *hub.Pipeline, monitor *hub.MonitorService) ChatHandler {
	return &chatHandler{
		conversations: conversations,
		pipeline:      pipeline,
		monitor:       monitor,
	}
}

func (h *chatHandler) GetConversations(c *gin.Context) {
	conversations, err := h.conversations.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *chatHandler) GetRoomMessages(c *gin.Context) {
	conversationID := c.Param("conversationId")
	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page number"})
		return
	}

	result, err := h.pipeline.History(c.Request.Context(), conversationID, pageNumber)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidID) || errors.Is(err, repo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *chatHandler) GetMonitor(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.GetStats())
}
