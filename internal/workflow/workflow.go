// Package workflow is the automated procurement engine: the auto-approval rules, the
// approval router, order fulfillment and the orchestrator driving them on a schedule.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"procureflow/internal/model"
	"procureflow/internal/notification"
	"procureflow/internal/repository"
	"procureflow/internal/worker"

	"github.com/google/uuid"
)

var (
	// ErrPreconditionFailed means the row changed between scan and dispatch; the item is skipped
	ErrPreconditionFailed = errors.New("workflow precondition no longer holds")
	// ErrNoSystemApprover means the configured system identity cannot be resolved
	ErrNoSystemApprover = errors.New("system approver is not available")
	// ErrApprovalPending means another decision at the same level is still open
	ErrApprovalPending = errors.New("an approval at this level is still pending")
)

// Notifier is the publishing surface the engine needs
type Notifier interface {
	BroadcastRequestUpdate(req *model.PurchaseRequest, action string)
	BroadcastApprovalUpdate(u notification.ApprovalUpdate)
	BroadcastPurchaseOrderCreated(o notification.OrderCreated)
	BroadcastWorkflowTransition(t notification.WorkflowTransition)
	BroadcastStatistics(stats *model.Statistics)
	SendPersonal(userID uuid.UUID, n notification.Notification)
}

// Submitter accepts fire-and-forget work
type Submitter interface {
	Submit(task worker.Task) error
}

// StatisticsSource produces the aggregate dashboard snapshot
type StatisticsSource interface {
	Snapshot(ctx context.Context) (*model.Statistics, error)
}

// Store groups the repositories the engine reads and writes
type Store struct {
	Tx        repository.TransactionManager
	Requests  repository.PurchaseRequestRepository
	Approvals repository.ApprovalRepository
	Orders    repository.PurchaseOrderRepository
	Users     repository.UserRepository
	Audit     repository.AuditRepository
}

func preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrPreconditionFailed)
}

func writeAudit(ctx context.Context, audit repository.AuditRepository, userID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry := model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := audit.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
