package notification

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topics a subscriber may listen on
const (
	TopicPurchaseRequests = "purchase-requests"
	TopicApprovals        = "approvals"
	TopicPurchaseOrders   = "purchase-orders"
	TopicWorkflow         = "workflow"
	TopicDashboard        = "dashboard/updates"
	TopicStatistics       = "dashboard/statistics"

	// QueuePersonal is the per-user point-to-point queue
	QueuePersonal = "notifications"
)

// AllTopics lists every fan-out topic
var AllTopics = []string{
	TopicPurchaseRequests,
	TopicApprovals,
	TopicPurchaseOrders,
	TopicWorkflow,
	TopicDashboard,
	TopicStatistics,
}

// Notification types
const (
	TypeRequestUpdate    = "PURCHASE_REQUEST_UPDATE"
	TypeApprovalUpdate   = "APPROVAL_UPDATE"
	TypePurchaseOrder    = "PURCHASE_ORDER_CREATED"
	TypeWorkflowUpdate   = "WORKFLOW_UPDATE"
	TypeStatisticsUpdate = "STATISTICS_UPDATE"
	TypeReviewAssignment = "REVIEW_ASSIGNMENT"
)

const (
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
)

// Notification is the wire format delivered to subscribers
type Notification struct {
	Type      string      `json:"type"`
	Title     string      `json:"title,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Action    string      `json:"action,omitempty"`
	Priority  string      `json:"priority,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
}

// Message addresses a notification either to a topic or to one user's personal queue
type Message struct {
	Topic        string       `json:"topic,omitempty"`
	UserID       string       `json:"user_id,omitempty"`
	Notification Notification `json:"notification"`
}

// Personal reports whether the message targets a single user
func (m Message) Personal() bool {
	return m.UserID != ""
}

type RequestUpdate struct {
	RequestID     uuid.UUID       `json:"request_id"`
	RequestNumber string          `json:"request_number"`
	Title         string          `json:"title"`
	Department    string          `json:"department"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

type ApprovalUpdate struct {
	RequestID    uuid.UUID `json:"request_id"`
	Status       string    `json:"status"`
	ApproverName string    `json:"approver_name"`
	Comments     string    `json:"comments"`
}

type OrderCreated struct {
	RequestID    uuid.UUID       `json:"request_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	SupplierName string          `json:"supplier_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

type WorkflowTransition struct {
	RequestID  uuid.UUID `json:"request_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason"`
}
