package handler

import (
	"context"
	"net/http"

	"procureflow/internal/middleware"
	"procureflow/internal/model"
	"procureflow/internal/workflow"
	"procureflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// TickRunner runs one pass of a named workflow tick
type TickRunner interface {
	RunTick(ctx context.Context, name string) error
}

type WorkflowHandler struct {
	runner TickRunner
	auth   *middleware.Auth
}

func NewWorkflowHandler(runner TickRunner, auth *middleware.Auth) *WorkflowHandler {
	return &WorkflowHandler{runner: runner, auth: auth}
}

func (h *WorkflowHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/workflow")
	group.Use(h.auth.RequireRole(model.RoleAdmin))
	{
		group.POST("/scans/:tick", h.RunScan)
	}
}

// RunScan triggers a tick immediately, alongside the regular schedule
// @Summary      Run a workflow tick now
// @Tags         workflow
// @Produce      json
// @Security     BearerAuth
// @Param        tick  path      string  true  "auto-approval, order-generation or statistics"
// @Success      202   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Router       /api/workflow/scans/{tick} [post]
func (h *WorkflowHandler) RunScan(c *gin.Context) {
	tick := c.Param("tick")
	switch tick {
	case workflow.TickAutoApproval, workflow.TickOrderGeneration, workflow.TickStatistics:
	default:
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "Unknown tick: "+tick))
		return
	}

	if err := h.runner.RunTick(c.Request.Context(), tick); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, gin.H{"tick": tick}))
}
