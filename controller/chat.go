package controller

import (
	"errors"
	"net/http"

	"genshai/service"

	"github.com/gin-gonic/gin"
)

type ChatController struct {
	chat    *service.ChatService
	limiter *service.RateLimiter
}

// NewChatController wires the relay and an optional rate limiter (nil when
// redis is not configured).
func NewChatController(chat *service.ChatService, limiter *service.RateLimiter) *ChatController {
	return &ChatController{chat: chat, limiter: limiter}
}

// Chat runs one streamed chat turn. On success the body is the upstream
// event stream and X-Conversation-Id names the conversation written to.
func (ctrl *ChatController) Chat(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if ctrl.limiter != nil {
		key := req.UserID
		if key == "" {
			key = req.UserSession
		}
		if key == "" {
			key = c.ClientIP()
		}
		if !ctrl.limiter.Allow(c.Request.Context(), key) {
			logger.Warnf("[%s] chat turn rate limited for %s", c.GetString("requestId"), key)
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			return
		}
	}

	if err := ctrl.chat.StreamChat(c, &req); err != nil {
		var relayErr *service.RelayError
		if errors.As(err, &relayErr) {
			c.JSON(relayErr.Status, gin.H{"error": relayErr.Message})
			return
		}
		logger.Warnf("[%s] chat turn failed: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run chat turn"})
	}
}

// History returns the message log of the caller's latest conversation with
// an agent, or the empty shape when there is none.
func (ctrl *ChatController) History(c *gin.Context) {
	agentID := c.Query("agentId")
	userID := c.Query("userId")
	userSession := c.Query("userSession")

	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agentId is required"})
		return
	}
	if userID == "" && userSession == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId or userSession is required"})
		return
	}

	resp, err := ctrl.chat.History(agentID, userID, userSession)
	if err != nil {
		logger.Warnf("[%s] failed to load history: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
