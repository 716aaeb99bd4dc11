package notification

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"procureflow/internal/model"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []Message
}

func (s *recordingSink) Deliver(msg Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *recordingSink) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

type panickingSink struct{}

func (panickingSink) Deliver(Message) { panic("sink exploded") }

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestBroadcaster(sinks ...Sink) *Broadcaster {
	b := NewBroadcaster(zap.NewNop(), sinks...)
	b.now = func() time.Time { return fixedNow }
	return b
}

func TestBroadcaster_RequestLifecycleGolden(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBroadcaster(sink)

	requestID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	reviewerID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	req := &model.PurchaseRequest{
		ID:            requestID,
		RequestNumber: "PR-20250102-00001",
		Title:         "Ergonomic chairs",
		Department:    "HR",
		Status:        model.RequestPending,
		TotalAmount:   decimal.RequireFromString("1500.50"),
	}

	b.BroadcastRequestUpdate(req, "CREATED")
	b.BroadcastWorkflowTransition(WorkflowTransition{
		RequestID:  requestID,
		FromStatus: "PENDING",
		ToStatus:   "UNDER_REVIEW",
		Reason:     "exceeds auto-approval threshold",
	})
	b.SendPersonal(reviewerID, Notification{
		Type:     TypeReviewAssignment,
		Title:    "Review Required",
		Message:  "Request 'Ergonomic chairs' (1500.50) is waiting for your review",
		Action:   "REVIEW",
		Priority: PriorityHigh,
	})

	out, err := json.MarshalIndent(sink.messages(), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "request_lifecycle", append(out, '\n'))
}

func TestBroadcaster_MirrorsOntoDashboard(t *testing.T) {
	tests := []struct {
		name    string
		publish func(b *Broadcaster)
		topics  []string
	}{
		{
			name: "approval",
			publish: func(b *Broadcaster) {
				b.BroadcastApprovalUpdate(ApprovalUpdate{RequestID: uuid.New(), Status: "APPROVED", ApproverName: "System"})
			},
			topics: []string{TopicApprovals, TopicDashboard},
		},
		{
			name: "purchase order",
			publish: func(b *Broadcaster) {
				b.BroadcastPurchaseOrderCreated(OrderCreated{RequestID: uuid.New(), OrderNumber: "PO-1"})
			},
			topics: []string{TopicPurchaseOrders, TopicDashboard},
		},
		{
			name: "statistics",
			publish: func(b *Broadcaster) {
				b.BroadcastStatistics(&model.Statistics{TotalRequests: 1})
			},
			topics: []string{TopicStatistics},
		},
		{
			name: "dashboard",
			publish: func(b *Broadcaster) {
				b.Publish(TopicDashboard, Notification{Type: TypeWorkflowUpdate})
			},
			topics: []string{TopicDashboard},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			tt.publish(newTestBroadcaster(sink))

			var topics []string
			for _, m := range sink.messages() {
				topics = append(topics, m.Topic)
				assert.Equal(t, fixedNow, m.Notification.Timestamp)
				assert.False(t, m.Personal())
			}
			assert.Equal(t, tt.topics, topics)
		})
	}
}

func TestBroadcaster_ApprovalMessage(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBroadcaster(sink)
	id := uuid.New()

	b.BroadcastApprovalUpdate(ApprovalUpdate{RequestID: id, Status: "APPROVED", ApproverName: "System (Auto-Approval)"})

	msgs := sink.messages()
	require.NotEmpty(t, msgs)
	n := msgs[0].Notification
	assert.Equal(t, TypeApprovalUpdate, n.Type)
	assert.Equal(t, "Request APPROVED", n.Title)
	assert.Equal(t, "Request "+id.String()+" has been approved by System (Auto-Approval)", n.Message)
}

func TestBroadcaster_StatisticsMessage(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBroadcaster(sink)
	stats := &model.Statistics{TotalRequests: 7}

	b.BroadcastStatistics(stats)

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	n := msgs[0].Notification
	assert.Equal(t, TypeStatisticsUpdate, n.Type)
	assert.Equal(t, "Statistics Update", n.Title)
	assert.Equal(t, "Dashboard statistics refreshed", n.Message)
	assert.Same(t, stats, n.Data)
}

func TestBroadcaster_AssignedRequestMessage(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBroadcaster(sink)

	b.BroadcastRequestUpdate(&model.PurchaseRequest{ID: uuid.New(), Title: "Audit software", Status: model.RequestUnderReview}, "ASSIGNED")

	msgs := sink.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "Reviewer Assigned", msgs[0].Notification.Title)
	assert.Equal(t, "Request 'Audit software' was assigned to a new reviewer", msgs[0].Notification.Message)
}

func TestBroadcaster_SinkPanicDoesNotReachCaller(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBroadcaster(panickingSink{}, sink)

	assert.NotPanics(t, func() {
		b.BroadcastWorkflowTransition(WorkflowTransition{RequestID: uuid.New(), FromStatus: "APPROVED", ToStatus: "IN_PROGRESS"})
	})
	assert.Len(t, sink.messages(), 2)
}

func TestBroadcaster_KeepsExplicitTimestamp(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBroadcaster(sink)
	at := fixedNow.Add(-time.Hour)

	b.Publish(TopicWorkflow, Notification{Type: TypeWorkflowUpdate, Timestamp: at})
	for _, m := range sink.messages() {
		assert.Equal(t, at, m.Notification.Timestamp)
	}
}

func TestRedisRelay_HandlePayload(t *testing.T) {
	local := &recordingSink{}
	relay := NewRedisRelay(nil, "", local, zap.NewNop())
	assert.Equal(t, DefaultRelayChannel, relay.channel)

	msg := Message{Topic: TopicWorkflow, Notification: Notification{Type: TypeWorkflowUpdate, Title: "Workflow Progress"}}

	own, err := json.Marshal(relayEnvelope{Origin: relay.origin, Message: msg})
	require.NoError(t, err)
	relay.handlePayload(string(own))
	assert.Empty(t, local.messages())

	remote, err := json.Marshal(relayEnvelope{Origin: "other-replica", Message: msg})
	require.NoError(t, err)
	relay.handlePayload(string(remote))
	require.Len(t, local.messages(), 1)
	assert.Equal(t, "Workflow Progress", local.messages()[0].Notification.Title)

	relay.handlePayload("{not json")
	assert.Len(t, local.messages(), 1)
}

func TestRedisRelay_DeliverDropsWhenBacklogFull(t *testing.T) {
	relay := NewRedisRelay(nil, "custom", &recordingSink{}, zap.NewNop())

	for i := 0; i < cap(relay.out)+10; i++ {
		relay.Deliver(Message{Topic: TopicWorkflow})
	}
	assert.Len(t, relay.out, cap(relay.out))
}
