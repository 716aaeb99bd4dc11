package handler

import (
	"errors"
	"net/http"

	"procureflow/internal/repository"
	"procureflow/internal/service"
	"procureflow/internal/workflow"
	"procureflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// writeError maps service errors onto HTTP statuses
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, workflow.ErrPreconditionFailed),
		errors.Is(err, workflow.ErrApprovalPending):
		status = http.StatusConflict
	}
	_ = c.Error(err)
	c.JSON(status, response.Error(status, err.Error()))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id format"))
		return uuid.Nil, false
	}
	return id, true
}
