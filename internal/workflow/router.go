package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"procureflow/internal/model"
	"procureflow/internal/notification"
	"procureflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SystemApproverName = "System (Auto-Approval)"
	escalationReason   = "exceeds auto-approval threshold"
	autoApprovalReason = "Auto-approved based on business rules"
)

// RouteResult describes what the router did with one request
type RouteResult struct {
	Decision   Decision
	ApprovalID uuid.UUID  // set on auto-approval
	ReviewerID *uuid.UUID // set on escalation when a reviewer was found
}

// ApprovalRouter persists approval decisions and advances request status
type ApprovalRouter struct {
	store            Store
	notifier         Notifier
	systemApproverID uuid.UUID
	log              *zap.Logger
}

func NewApprovalRouter(store Store, notifier Notifier, systemApproverID uuid.UUID, log *zap.Logger) *ApprovalRouter {
	return &ApprovalRouter{
		store:            store,
		notifier:         notifier,
		systemApproverID: systemApproverID,
		log:              log,
	}
}

// SystemApprover resolves the configured system identity to an active user
func (r *ApprovalRouter) SystemApprover(ctx context.Context) (*model.User, error) {
	if r.systemApproverID == uuid.Nil {
		return nil, fmt.Errorf("no system approver configured: %w", ErrNoSystemApprover)
	}
	user, err := r.store.Users.GetByID(ctx, r.systemApproverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("system approver %s does not exist: %w", r.systemApproverID, ErrNoSystemApprover)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load system approver: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("system approver %s is inactive: %w", user.Username, ErrNoSystemApprover)
	}
	return user, nil
}

// Route evaluates a PENDING request and either auto-approves or escalates it. The
// PENDING precondition is re-checked under a row lock inside the same transaction
// that performs the write.
func (r *ApprovalRouter) Route(ctx context.Context, requestID uuid.UUID) (RouteResult, error) {
	var (
		result   RouteResult
		req      *model.PurchaseRequest
		approval *model.Approval
	)

	err := r.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = r.store.Requests.FindByIDForUpdate(txCtx, requestID)
		if err != nil {
			return fmt.Errorf("failed to load request: %w", err)
		}
		if req.Status != model.RequestPending {
			return preconditionf("request %s is %s, not PENDING", req.ID, req.Status)
		}

		result.Decision, err = Evaluate(InputFor(req))
		if err != nil {
			return fmt.Errorf("rule evaluation failed for request %s: %w", req.ID, err)
		}

		if result.Decision.Verdict == AutoApprove {
			approval, err = r.autoApprove(txCtx, req, result.Decision)
			if err != nil {
				return err
			}
			result.ApprovalID = approval.ID
			return nil
		}

		result.ReviewerID, err = r.escalate(txCtx, req)
		return err
	})
	if err != nil {
		return result, err
	}

	if result.Decision.Verdict == AutoApprove {
		r.notifier.BroadcastApprovalUpdate(notification.ApprovalUpdate{
			RequestID:    req.ID,
			Status:       string(model.ApprovalApproved),
			ApproverName: SystemApproverName,
			Comments:     approval.Comments,
		})
		r.notifier.BroadcastWorkflowTransition(notification.WorkflowTransition{
			RequestID:  req.ID,
			FromStatus: model.RequestPending.String(),
			ToStatus:   model.RequestApproved.String(),
			Reason:     autoApprovalReason,
		})
		r.log.Info("auto-approved request",
			zap.String("request_id", req.ID.String()),
			zap.String("amount", req.TotalAmount.StringFixed(2)),
			zap.String("rule", string(result.Decision.Rule)))
		return result, nil
	}

	r.notifier.BroadcastWorkflowTransition(notification.WorkflowTransition{
		RequestID:  req.ID,
		FromStatus: model.RequestPending.String(),
		ToStatus:   model.RequestUnderReview.String(),
		Reason:     escalationReason,
	})
	if result.ReviewerID != nil {
		r.notifier.SendPersonal(*result.ReviewerID, ReviewAssignment(req,
			fmt.Sprintf("Request '%s' (%s) is waiting for your review", req.Title, req.TotalAmount.StringFixed(2))))
	}
	r.log.Info("escalated request for manual review",
		zap.String("request_id", req.ID.String()),
		zap.String("amount", req.TotalAmount.StringFixed(2)),
		zap.Bool("assigned", result.ReviewerID != nil))
	return result, nil
}

func (r *ApprovalRouter) autoApprove(ctx context.Context, req *model.PurchaseRequest, decision Decision) (*model.Approval, error) {
	approver, err := r.SystemApprover(ctx)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(model.RequestApproved) {
		return nil, preconditionf("request %s cannot move from %s to APPROVED", req.ID, req.Status)
	}

	approval := &model.Approval{
		PurchaseRequestID: req.ID,
		ApproverID:        approver.ID,
		Status:            model.ApprovalApproved,
		Level:             1,
		Comments:          autoApprovalComment(req),
	}
	if err := r.store.Approvals.Create(ctx, approval); err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}

	req.Status = model.RequestApproved
	if err := r.store.Requests.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	if err := writeAudit(ctx, r.store.Audit, &approver.ID, model.ActionAutoApproveRequest, req.ID.String(), req.RequestNumber, map[string]interface{}{
		"approval_id": approval.ID.String(),
		"amount":      req.TotalAmount.StringFixed(2),
		"department":  req.Department,
		"rule":        string(decision.Rule),
	}); err != nil {
		return nil, err
	}
	return approval, nil
}

func (r *ApprovalRouter) escalate(ctx context.Context, req *model.PurchaseRequest) (*uuid.UUID, error) {
	if !req.Status.CanTransitionTo(model.RequestUnderReview) {
		return nil, preconditionf("request %s cannot move from %s to UNDER_REVIEW", req.ID, req.Status)
	}

	reviewer, err := r.findReviewer(ctx, req.Department)
	if err != nil {
		return nil, err
	}

	req.Status = model.RequestUnderReview
	var reviewerID *uuid.UUID
	if reviewer != nil {
		id := reviewer.ID
		reviewerID = &id
		req.AssignedTo = reviewerID
	}
	if err := r.store.Requests.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	details := map[string]interface{}{
		"amount":     req.TotalAmount.StringFixed(2),
		"department": req.Department,
		"reason":     escalationReason,
	}
	if reviewerID != nil {
		details["assigned_to"] = reviewerID.String()
	}
	if err := writeAudit(ctx, r.store.Audit, nil, model.ActionEscalateRequest, req.ID.String(), req.RequestNumber, details); err != nil {
		return nil, err
	}
	return reviewerID, nil
}

// findReviewer returns the first active manager of the department, else any active
// manager, else nil.
func (r *ApprovalRouter) findReviewer(ctx context.Context, department string) (*model.User, error) {
	managers, err := r.store.Users.ListActiveByRole(ctx, model.RoleManager)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewers: %w", err)
	}
	if len(managers) == 0 {
		return nil, nil
	}
	for i := range managers {
		if managers[i].Department == department {
			return &managers[i], nil
		}
	}
	return &managers[0], nil
}

// ManualDecision is a human approve/reject of an escalated request
type ManualDecision struct {
	RequestID  uuid.UUID
	ApproverID uuid.UUID
	Approve    bool
	Comments   string
}

// Decide records a manual decision on an UNDER_REVIEW request as the next approval
// level and moves the request to APPROVED or REJECTED.
func (r *ApprovalRouter) Decide(ctx context.Context, d ManualDecision) (*model.Approval, error) {
	target := model.RequestRejected
	status := model.ApprovalRejected
	action := model.ActionRejectRequest
	if d.Approve {
		target = model.RequestApproved
		status = model.ApprovalApproved
		action = model.ActionApproveRequest
	}

	var (
		req      *model.PurchaseRequest
		approver *model.User
		approval *model.Approval
	)
	err := r.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = r.store.Requests.FindByIDForUpdate(txCtx, d.RequestID)
		if err != nil {
			return fmt.Errorf("failed to load request: %w", err)
		}
		if req.Status != model.RequestUnderReview || !req.Status.CanTransitionTo(target) {
			return preconditionf("request %s is %s, not UNDER_REVIEW", req.ID, req.Status)
		}

		approver, err = r.store.Users.GetByID(txCtx, d.ApproverID)
		if err != nil {
			return fmt.Errorf("failed to load approver: %w", err)
		}

		level, err := r.store.Approvals.NextLevel(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("failed to compute approval level: %w", err)
		}
		// an open approval on the current top level has to be resolved first
		pending, err := r.store.Approvals.CountPendingAtLevel(txCtx, req.ID, level-1)
		if err != nil {
			return fmt.Errorf("failed to check pending approvals: %w", err)
		}
		if pending > 0 {
			return ErrApprovalPending
		}

		approval = &model.Approval{
			PurchaseRequestID: req.ID,
			ApproverID:        approver.ID,
			Status:            status,
			Level:             level,
			Comments:          d.Comments,
		}
		if err := r.store.Approvals.Create(txCtx, approval); err != nil {
			return fmt.Errorf("failed to create approval: %w", err)
		}

		req.Status = target
		if err := r.store.Requests.Update(txCtx, req); err != nil {
			return fmt.Errorf("failed to update request status: %w", err)
		}

		return writeAudit(txCtx, r.store.Audit, &approver.ID, action, req.ID.String(), req.RequestNumber, map[string]interface{}{
			"approval_id": approval.ID.String(),
			"level":       level,
			"comments":    d.Comments,
		})
	})
	if err != nil {
		return nil, err
	}

	r.notifier.BroadcastApprovalUpdate(notification.ApprovalUpdate{
		RequestID:    req.ID,
		Status:       string(status),
		ApproverName: approver.Username,
		Comments:     d.Comments,
	})
	r.notifier.BroadcastWorkflowTransition(notification.WorkflowTransition{
		RequestID:  req.ID,
		FromStatus: model.RequestUnderReview.String(),
		ToStatus:   target.String(),
		Reason:     "Manual review by " + approver.Username,
	})
	r.notifier.SendPersonal(req.RequestedBy, notification.Notification{
		Type:    notification.TypeApprovalUpdate,
		Title:   "Request " + strings.ToLower(string(status)),
		Message: fmt.Sprintf("Your request '%s' was %s by %s", req.Title, strings.ToLower(string(status)), approver.Username),
		Action:  string(status),
		Data:    notification.ApprovalUpdate{RequestID: req.ID, Status: string(status), ApproverName: approver.Username, Comments: d.Comments},
	})
	return approval, nil
}

func autoApprovalComment(req *model.PurchaseRequest) string {
	return fmt.Sprintf("Auto-approved: Amount %s is within auto-approval threshold. Request meets business criteria for %s department.",
		req.TotalAmount.StringFixed(2), req.Department)
}

// ReviewAssignment is the personal notification sent to a reviewer who was handed a request
func ReviewAssignment(req *model.PurchaseRequest, message string) notification.Notification {
	return notification.Notification{
		Type:     notification.TypeReviewAssignment,
		Title:    "Review Required",
		Message:  message,
		Data:     notification.RequestUpdate{RequestID: req.ID, RequestNumber: req.RequestNumber, Title: req.Title, Department: req.Department, Status: req.Status.String(), TotalAmount: req.TotalAmount},
		Action:   "REVIEW",
		Priority: reviewPriority(req.Priority),
	}
}

func reviewPriority(p model.Priority) string {
	if p == model.PriorityHigh || p == model.PriorityUrgent {
		return notification.PriorityHigh
	}
	return notification.PriorityNormal
}
