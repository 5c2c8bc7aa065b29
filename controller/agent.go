package controller

import (
	"errors"
	"net/http"

	"genshai/model"
	"genshai/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AgentController struct {
	agents *service.AgentService
}

func NewAgentController(agents *service.AgentService) *AgentController {
	return &AgentController{agents: agents}
}

func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("UserId")
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	if !ok {
		return 0, false
	}
	return uint(id), true
}

// agentView adds the assembled prompt so clients can pass it back as
// customSystemPrompt on chat turns.
func agentView(agent *model.UserAgent) gin.H {
	return gin.H{
		"agent":         agent,
		"system_prompt": agent.SystemPrompt(),
	}
}

func (ctrl *AgentController) Create(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please login first"})
		return
	}

	var input service.AgentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	agent, err := ctrl.agents.Create(ownerID, &input)
	if err != nil {
		if errors.Is(err, service.ErrSlugReserved) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Warnf("[%s] Failed to create agent: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create agent"})
		return
	}
	c.JSON(http.StatusCreated, agentView(agent))
}

func (ctrl *AgentController) List(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please login first"})
		return
	}

	agents, err := ctrl.agents.List(ownerID)
	if err != nil {
		logger.Warnf("[%s] Failed to list agents: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list agents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (ctrl *AgentController) Get(c *gin.Context) {
	agent, err := ctrl.agents.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
			return
		}
		logger.Warnf("[%s] Failed to get agent: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get agent"})
		return
	}
	c.JSON(http.StatusOK, agentView(agent))
}

func (ctrl *AgentController) Update(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please login first"})
		return
	}

	var input service.AgentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	agent, err := ctrl.agents.Update(ownerID, c.Param("id"), &input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not your agent"})
		case errors.Is(err, service.ErrSlugReserved):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
		default:
			logger.Warnf("[%s] Failed to update agent: %s", c.GetString("requestId"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update agent"})
		}
		return
	}
	c.JSON(http.StatusOK, agentView(agent))
}

func (ctrl *AgentController) Delete(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please login first"})
		return
	}

	if err := ctrl.agents.Delete(ownerID, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, service.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not your agent"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
		default:
			logger.Warnf("[%s] Failed to delete agent: %s", c.GetString("requestId"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete agent"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Agent deleted"})
}
