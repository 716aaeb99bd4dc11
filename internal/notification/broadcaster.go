package notification

import (
	"fmt"
	"strings"
	"time"

	"procureflow/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives addressed messages. Implementations must not block.
type Sink interface {
	Deliver(msg Message)
}

// Broadcaster fans notifications out to every registered sink. Publishing never
// fails the caller and never waits on subscribers.
type Broadcaster struct {
	log   *zap.Logger
	sinks []Sink
	now   func() time.Time
}

func NewBroadcaster(log *zap.Logger, sinks ...Sink) *Broadcaster {
	return &Broadcaster{log: log, sinks: sinks, now: time.Now}
}

// AddSink registers another sink; call before publishing starts
func (b *Broadcaster) AddSink(s Sink) {
	b.sinks = append(b.sinks, s)
}

// Publish sends n to topic. Every topic except statistics is mirrored onto the
// dashboard topic.
func (b *Broadcaster) Publish(topic string, n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = b.now()
	}
	b.deliver(Message{Topic: topic, Notification: n})
	if topic != TopicDashboard && topic != TopicStatistics {
		b.deliver(Message{Topic: TopicDashboard, Notification: n})
	}
}

// SendPersonal delivers n to a single user's queue
func (b *Broadcaster) SendPersonal(userID uuid.UUID, n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = b.now()
	}
	n.UserID = userID.String()
	b.deliver(Message{UserID: n.UserID, Notification: n})
}

func (b *Broadcaster) deliver(msg Message) {
	for _, s := range b.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("notification sink panicked", zap.String("topic", msg.Topic), zap.Any("panic", r))
				}
			}()
			s.Deliver(msg)
		}()
	}
}

// BroadcastRequestUpdate announces a lifecycle change of a purchase request
func (b *Broadcaster) BroadcastRequestUpdate(req *model.PurchaseRequest, action string) {
	b.Publish(TopicPurchaseRequests, Notification{
		Type:    TypeRequestUpdate,
		Title:   requestTitle(action),
		Message: requestMessage(action, req),
		Action:  action,
		Data: RequestUpdate{
			RequestID:     req.ID,
			RequestNumber: req.RequestNumber,
			Title:         req.Title,
			Department:    req.Department,
			Status:        req.Status.String(),
			TotalAmount:   req.TotalAmount,
		},
	})
}

func (b *Broadcaster) BroadcastApprovalUpdate(u ApprovalUpdate) {
	b.Publish(TopicApprovals, Notification{
		Type:    TypeApprovalUpdate,
		Title:   "Request " + u.Status,
		Message: fmt.Sprintf("Request %s has been %s by %s", u.RequestID, strings.ToLower(u.Status), u.ApproverName),
		Action:  u.Status,
		Data:    u,
	})
}

func (b *Broadcaster) BroadcastPurchaseOrderCreated(o OrderCreated) {
	b.Publish(TopicPurchaseOrders, Notification{
		Type:    TypePurchaseOrder,
		Title:   "Purchase Order Created",
		Message: fmt.Sprintf("PO %s created for request %s with supplier %s", o.OrderNumber, o.RequestID, o.SupplierName),
		Action:  "CREATED",
		Data:    o,
	})
}

func (b *Broadcaster) BroadcastWorkflowTransition(t WorkflowTransition) {
	b.Publish(TopicWorkflow, Notification{
		Type:    TypeWorkflowUpdate,
		Title:   "Workflow Progress",
		Message: fmt.Sprintf("Request %s moved from %s to %s", t.RequestID, t.FromStatus, t.ToStatus),
		Action:  "STATUS_CHANGE",
		Data:    t,
	})
}

// BroadcastStatistics publishes a periodic aggregate snapshot
func (b *Broadcaster) BroadcastStatistics(stats *model.Statistics) {
	b.Publish(TopicStatistics, Notification{
		Type:    TypeStatisticsUpdate,
		Title:   "Statistics Update",
		Message: "Dashboard statistics refreshed",
		Data:    stats,
	})
}

func requestTitle(action string) string {
	switch strings.ToUpper(action) {
	case "CREATED":
		return "New Purchase Request"
	case "UPDATED":
		return "Request Updated"
	case "APPROVED":
		return "Request Approved"
	case "REJECTED":
		return "Request Rejected"
	case "COMPLETED":
		return "Request Completed"
	case "CANCELLED":
		return "Request Cancelled"
	case "ASSIGNED":
		return "Reviewer Assigned"
	default:
		return "Request " + action
	}
}

func requestMessage(action string, req *model.PurchaseRequest) string {
	switch strings.ToUpper(action) {
	case "CREATED":
		return fmt.Sprintf("New request '%s' created (%s)", req.Title, req.TotalAmount.StringFixed(2))
	case "APPROVED":
		return fmt.Sprintf("Request '%s' approved for %s", req.Title, req.TotalAmount.StringFixed(2))
	case "REJECTED":
		return fmt.Sprintf("Request '%s' has been rejected", req.Title)
	case "COMPLETED":
		return fmt.Sprintf("Request '%s' completed successfully", req.Title)
	case "CANCELLED":
		return fmt.Sprintf("Request '%s' has been cancelled", req.Title)
	case "ASSIGNED":
		return fmt.Sprintf("Request '%s' was assigned to a new reviewer", req.Title)
	default:
		return fmt.Sprintf("Request '%s' status: %s", req.Title, action)
	}
}
