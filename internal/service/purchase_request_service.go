package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"procureflow/internal/model"
	"procureflow/internal/notification"
	"procureflow/internal/repository"
	"procureflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTransition is returned when the requested status change is not a legal edge
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrValidation wraps rejected input
	ErrValidation = errors.New("validation failed")
)

// --- DTOs ---

type CreatePurchaseRequestDTO struct {
	Title                string          `json:"title" binding:"required,max=255"`
	Description          string          `json:"description"`
	Department           string          `json:"department" binding:"required,max=100"`
	Priority             model.Priority  `json:"priority" binding:"required,oneof=LOW MEDIUM HIGH URGENT"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	Justification        string          `json:"justification"`
	ExpectedDeliveryDate *time.Time      `json:"expected_delivery_date"`
}

type DecisionDTO struct {
	Comments string `json:"comments"`
}

type AssignDTO struct {
	ReviewerID uuid.UUID `json:"reviewer_id" binding:"required"`
}

type PurchaseRequestFilter struct {
	Status      string
	AssignedTo  *uuid.UUID
	RequestedBy *uuid.UUID
	Page        int
	Limit       int
}

// --- Interface ---

type PurchaseRequestService interface {
	Create(ctx context.Context, requesterID uuid.UUID, dto CreatePurchaseRequestDTO) (*model.PurchaseRequest, error)
	List(ctx context.Context, filter PurchaseRequestFilter) ([]model.PurchaseRequest, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	ListApprovals(ctx context.Context, id uuid.UUID) ([]model.Approval, error)
	Approve(ctx context.Context, id, approverID uuid.UUID, comments string) (*model.Approval, error)
	Reject(ctx context.Context, id, approverID uuid.UUID, comments string) (*model.Approval, error)
	// Assign hands an UNDER_REVIEW request to another active manager or admin
	Assign(ctx context.Context, id, reviewerID, actorID uuid.UUID) (*model.PurchaseRequest, error)
	Cancel(ctx context.Context, id, userID uuid.UUID) (*model.PurchaseRequest, error)
	Complete(ctx context.Context, id, userID uuid.UUID) (*model.PurchaseRequest, error)
}

// Decider records manual approval decisions
type Decider interface {
	Decide(ctx context.Context, d workflow.ManualDecision) (*model.Approval, error)
}

type purchaseRequestService struct {
	tx        repository.TransactionManager
	requests  repository.PurchaseRequestRepository
	approvals repository.ApprovalRepository
	users     repository.UserRepository
	audit     repository.AuditRepository
	decider   Decider
	notifier  workflow.Notifier
}

func NewPurchaseRequestService(
	tx repository.TransactionManager,
	requests repository.PurchaseRequestRepository,
	approvals repository.ApprovalRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	decider Decider,
	notifier workflow.Notifier,
) PurchaseRequestService {
	return &purchaseRequestService{
		tx:        tx,
		requests:  requests,
		approvals: approvals,
		users:     users,
		audit:     audit,
		decider:   decider,
		notifier:  notifier,
	}
}

// --- Implementation ---

// Create is the request intake path; new requests always start PENDING
func (s *purchaseRequestService) Create(ctx context.Context, requesterID uuid.UUID, dto CreatePurchaseRequestDTO) (*model.PurchaseRequest, error) {
	if dto.TotalAmount.IsNegative() {
		return nil, fmt.Errorf("%w: total_amount must not be negative", ErrValidation)
	}

	req := &model.PurchaseRequest{
		Title:                dto.Title,
		Description:          dto.Description,
		Department:           dto.Department,
		Priority:             dto.Priority,
		Status:               model.RequestPending,
		TotalAmount:          dto.TotalAmount.Round(2),
		Justification:        dto.Justification,
		ExpectedDeliveryDate: dto.ExpectedDeliveryDate,
		RequestedBy:          requesterID,
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		number, err := s.requests.NextRequestNumber(txCtx)
		if err != nil {
			return fmt.Errorf("failed to generate request number: %w", err)
		}
		req.RequestNumber = number

		if err := s.requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create purchase request: %w", err)
		}

		return s.writeAudit(txCtx, &requesterID, model.ActionCreateRequest, req, map[string]interface{}{
			"title":        req.Title,
			"department":   req.Department,
			"priority":     req.Priority,
			"total_amount": req.TotalAmount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRequestUpdate(req, "CREATED")
	return req, nil
}

func (s *purchaseRequestService) List(ctx context.Context, filter PurchaseRequestFilter) ([]model.PurchaseRequest, int64, error) {
	return s.requests.List(ctx, repository.RequestListFilter{
		Status:      filter.Status,
		AssignedTo:  filter.AssignedTo,
		RequestedBy: filter.RequestedBy,
		Page:        filter.Page,
		Limit:       filter.Limit,
	})
}

func (s *purchaseRequestService) Get(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	return s.requests.FindByID(ctx, id)
}

func (s *purchaseRequestService) ListApprovals(ctx context.Context, id uuid.UUID) ([]model.Approval, error) {
	if _, err := s.requests.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.approvals.ListByRequest(ctx, id)
}

func (s *purchaseRequestService) Approve(ctx context.Context, id, approverID uuid.UUID, comments string) (*model.Approval, error) {
	return s.decide(ctx, id, approverID, true, comments)
}

func (s *purchaseRequestService) Reject(ctx context.Context, id, approverID uuid.UUID, comments string) (*model.Approval, error) {
	return s.decide(ctx, id, approverID, false, comments)
}

func (s *purchaseRequestService) decide(ctx context.Context, id, approverID uuid.UUID, approve bool, comments string) (*model.Approval, error) {
	approval, err := s.decider.Decide(ctx, workflow.ManualDecision{
		RequestID:  id,
		ApproverID: approverID,
		Approve:    approve,
		Comments:   comments,
	})
	if errors.Is(err, workflow.ErrPreconditionFailed) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return approval, err
}

func (s *purchaseRequestService) Assign(ctx context.Context, id, reviewerID, actorID uuid.UUID) (*model.PurchaseRequest, error) {
	if reviewerID == uuid.Nil {
		return nil, fmt.Errorf("%w: reviewer_id is required", ErrValidation)
	}

	var req *model.PurchaseRequest
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if req.Status != model.RequestUnderReview {
			return fmt.Errorf("%w: only UNDER_REVIEW requests can be reassigned, request is %s", ErrInvalidTransition, req.Status)
		}

		reviewer, err := s.users.GetByID(txCtx, reviewerID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: reviewer %s does not exist", ErrValidation, reviewerID)
		}
		if err != nil {
			return fmt.Errorf("failed to load reviewer: %w", err)
		}
		if !reviewer.IsActive || (reviewer.Role != model.RoleManager && reviewer.Role != model.RoleAdmin) {
			return fmt.Errorf("%w: %s cannot review requests", ErrValidation, reviewer.Username)
		}

		details := map[string]interface{}{"to": reviewer.ID.String()}
		if req.AssignedTo != nil {
			details["from"] = req.AssignedTo.String()
		}
		req.AssignedTo = &reviewer.ID
		if err := s.requests.Update(txCtx, req); err != nil {
			return fmt.Errorf("failed to update purchase request: %w", err)
		}
		return s.writeAudit(txCtx, &actorID, model.ActionAssignReviewer, req, details)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRequestUpdate(req, "ASSIGNED")
	s.notifier.SendPersonal(reviewerID, workflow.ReviewAssignment(req,
		fmt.Sprintf("Request '%s' (%s) was assigned to you for review", req.Title, req.TotalAmount.StringFixed(2))))
	return s.requests.FindByID(ctx, id)
}

// Cancel moves any non-terminal request to CANCELLED
func (s *purchaseRequestService) Cancel(ctx context.Context, id, userID uuid.UUID) (*model.PurchaseRequest, error) {
	return s.transition(ctx, id, userID, model.RequestCancelled, model.ActionCancelRequest, "CANCELLED")
}

// Complete closes an IN_PROGRESS request once the goods were received
func (s *purchaseRequestService) Complete(ctx context.Context, id, userID uuid.UUID) (*model.PurchaseRequest, error) {
	return s.transition(ctx, id, userID, model.RequestCompleted, model.ActionCompleteRequest, "COMPLETED")
}

func (s *purchaseRequestService) transition(ctx context.Context, id, userID uuid.UUID, target model.RequestStatus, action, event string) (*model.PurchaseRequest, error) {
	var (
		req  *model.PurchaseRequest
		from model.RequestStatus
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		from = req.Status
		if !from.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
		}

		req.Status = target
		if err := s.requests.Update(txCtx, req); err != nil {
			return fmt.Errorf("failed to update purchase request: %w", err)
		}
		return s.writeAudit(txCtx, &userID, action, req, map[string]interface{}{
			"from_status": from,
			"to_status":   target,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRequestUpdate(req, event)
	s.notifier.BroadcastWorkflowTransition(notification.WorkflowTransition{
		RequestID:  req.ID,
		FromStatus: from.String(),
		ToStatus:   target.String(),
		Reason:     "Manual status change",
	})
	return req, nil
}

func (s *purchaseRequestService) writeAudit(ctx context.Context, userID *uuid.UUID, action string, req *model.PurchaseRequest, details map[string]interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry := model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   req.ID.String(),
		EntityName: req.RequestNumber,
		Details:    string(payload),
	}
	if err := s.audit.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
