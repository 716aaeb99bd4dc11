package handler

import (
	"context"
	"fmt"
	"net/http"

	"procureflow/internal/middleware"
	"procureflow/internal/model"
	"procureflow/internal/service"
	"procureflow/pkg/pagination"
	"procureflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PurchaseRequestHandler struct {
	requests service.PurchaseRequestService
	auth     *middleware.Auth
}

func NewPurchaseRequestHandler(requests service.PurchaseRequestService, auth *middleware.Auth) *PurchaseRequestHandler {
	return &PurchaseRequestHandler{requests: requests, auth: auth}
}

func (h *PurchaseRequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/purchase-requests")
	anyone := h.auth.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff)
	reviewers := h.auth.RequireRole(model.RoleAdmin, model.RoleManager)
	{
		group.POST("", anyone, h.Create)
		group.GET("", anyone, h.List)
		group.GET("/:id", anyone, h.Get)
		group.GET("/:id/approvals", anyone, h.ListApprovals)
		group.PUT("/:id/approve", reviewers, h.Approve)
		group.PUT("/:id/reject", reviewers, h.Reject)
		group.PUT("/:id/assign", reviewers, h.Assign)
		group.PUT("/:id/cancel", anyone, h.Cancel)
		group.PUT("/:id/complete", reviewers, h.Complete)
	}
}

// Create submits a new purchase request; the workflow engine picks it up on its next scan
// @Summary      Submit a purchase request
// @Description  Creates a PENDING request with a generated PR-YYYYMMDD-NNNNN number
// @Tags         purchase-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreatePurchaseRequestDTO  true  "Purchase request"
// @Success      201      {object}  response.Response{data=model.PurchaseRequest}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/purchase-requests [post]
func (h *PurchaseRequestHandler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	var dto service.CreatePurchaseRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request body: "+err.Error()))
		return
	}

	req, err := h.requests.Create(c.Request.Context(), userID, dto)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, req))
}

// List pages purchase requests, newest first
// @Summary      List purchase requests
// @Description  assigned_to and requested_by accept a user id or "me" for the caller
// @Tags         purchase-requests
// @Produce      json
// @Security     BearerAuth
// @Param        status        query     string  false  "Request status"
// @Param        assigned_to   query     string  false  "Reviewer id or me"
// @Param        requested_by  query     string  false  "Requester id or me"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Items per page (default 20, max 100)"
// @Success      200           {object}  response.Response{data=response.Page}
// @Failure      400           {object}  response.Response
// @Router       /api/purchase-requests [get]
func (h *PurchaseRequestHandler) List(c *gin.Context) {
	params, err := pagination.Parse(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	assignedTo, err := userQuery(c, "assigned_to")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	requestedBy, err := userQuery(c, "requested_by")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	requests, total, err := h.requests.List(c.Request.Context(), service.PurchaseRequestFilter{
		Status:      c.Query("status"),
		AssignedTo:  assignedTo,
		RequestedBy: requestedBy,
		Page:        params.Page,
		Limit:       params.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, requests, total, params.Page, params.Limit))
}

// userQuery reads a user id filter; "me" resolves to the authenticated user
func userQuery(c *gin.Context, key string) (*uuid.UUID, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	if raw == "me" {
		id, ok := middleware.CurrentUserID(c)
		if !ok {
			return nil, fmt.Errorf("%s=me needs an authenticated user", key)
		}
		return &id, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a user id or me, got %q", key, raw)
	}
	return &id, nil
}

// Get returns one request with its requester and reviewer
// @Summary      Get a purchase request
// @Tags         purchase-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.PurchaseRequest}
// @Failure      404  {object}  response.Response
// @Router       /api/purchase-requests/{id} [get]
func (h *PurchaseRequestHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, err := h.requests.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// ListApprovals returns the approval trail, lowest level first
// @Summary      List approvals of a request
// @Tags         purchase-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]model.Approval}
// @Failure      404  {object}  response.Response
// @Router       /api/purchase-requests/{id}/approvals [get]
func (h *PurchaseRequestHandler) ListApprovals(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	approvals, err := h.requests.ListApprovals(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, approvals))
}

// Approve records a manual approval on an UNDER_REVIEW request
// @Summary      Approve an escalated request
// @Tags         purchase-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string               true   "Request ID"
// @Param        payload  body      service.DecisionDTO  false  "Comments"
// @Success      200      {object}  response.Response{data=model.Approval}
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/approve [put]
func (h *PurchaseRequestHandler) Approve(c *gin.Context) {
	h.decide(c, h.requests.Approve)
}

// Reject records a manual rejection on an UNDER_REVIEW request
// @Summary      Reject an escalated request
// @Tags         purchase-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string               true   "Request ID"
// @Param        payload  body      service.DecisionDTO  false  "Comments"
// @Success      200      {object}  response.Response{data=model.Approval}
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/reject [put]
func (h *PurchaseRequestHandler) Reject(c *gin.Context) {
	h.decide(c, h.requests.Reject)
}

func (h *PurchaseRequestHandler) decide(c *gin.Context, decide func(ctx context.Context, id, approverID uuid.UUID, comments string) (*model.Approval, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	approverID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	var dto service.DecisionDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request body: "+err.Error()))
			return
		}
	}

	approval, err := decide(c.Request.Context(), id, approverID, dto.Comments)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, approval))
}

// Assign hands an escalated request to another reviewer
// @Summary      Reassign the reviewer of a request
// @Description  Only UNDER_REVIEW requests can be reassigned; the reviewer must be an active manager or admin
// @Tags         purchase-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string             true  "Request ID"
// @Param        payload  body      service.AssignDTO  true  "New reviewer"
// @Success      200      {object}  response.Response{data=model.PurchaseRequest}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/assign [put]
func (h *PurchaseRequestHandler) Assign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	var dto service.AssignDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request body: "+err.Error()))
		return
	}

	req, err := h.requests.Assign(c.Request.Context(), id, dto.ReviewerID, actorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// Cancel moves a non-terminal request to CANCELLED
// @Summary      Cancel a request
// @Tags         purchase-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.PurchaseRequest}
// @Failure      409  {object}  response.Response
// @Router       /api/purchase-requests/{id}/cancel [put]
func (h *PurchaseRequestHandler) Cancel(c *gin.Context) {
	h.transition(c, h.requests.Cancel)
}

// Complete closes a request once the goods arrived
// @Summary      Mark an IN_PROGRESS request as completed
// @Tags         purchase-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.PurchaseRequest}
// @Failure      409  {object}  response.Response
// @Router       /api/purchase-requests/{id}/complete [put]
func (h *PurchaseRequestHandler) Complete(c *gin.Context) {
	h.transition(c, h.requests.Complete)
}

func (h *PurchaseRequestHandler) transition(c *gin.Context, apply func(ctx context.Context, id, userID uuid.UUID) (*model.PurchaseRequest, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	req, err := apply(c.Request.Context(), id, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}
