// Package testutil holds the sqlite-backed fixtures shared by package tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"procureflow/internal/database"
	"procureflow/internal/model"
	"procureflow/internal/notification"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens a migrated sqlite database in a temp dir. A single connection keeps
// concurrent transactions serialized the way row locks do on postgres.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "procureflow.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts an active user
func CreateUser(t testing.TB, db *gorm.DB, username, role, department string) *model.User {
	t.Helper()
	user := &model.User{
		Username:   username,
		Email:      username + "@example.com",
		Password:   "x",
		Role:       role,
		Department: department,
		IsActive:   true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// RequestFixture describes a purchase request row; zero fields get defaults
type RequestFixture struct {
	Title      string
	Department string
	Priority   model.Priority
	Amount     string
	Status     model.RequestStatus
	CreatedAt  time.Time
}

// CreateRequest inserts a purchase request owned by requester
func CreateRequest(t testing.TB, db *gorm.DB, requester *model.User, fx RequestFixture) *model.PurchaseRequest {
	t.Helper()
	if fx.Title == "" {
		fx.Title = "Printer paper"
	}
	if fx.Department == "" {
		fx.Department = "Operations"
	}
	if fx.Priority == "" {
		fx.Priority = model.PriorityMedium
	}
	if fx.Amount == "" {
		fx.Amount = "100.00"
	}
	if fx.Status == "" {
		fx.Status = model.RequestPending
	}

	req := &model.PurchaseRequest{
		RequestNumber: fmt.Sprintf("PR-T-%s", uuid.NewString()),
		Title:         fx.Title,
		Department:    fx.Department,
		Priority:      fx.Priority,
		Status:        fx.Status,
		TotalAmount:   decimal.RequireFromString(fx.Amount),
		RequestedBy:   requester.ID,
		CreatedAt:     fx.CreatedAt,
	}
	require.NoError(t, db.Create(req).Error)
	return req
}

// Event kinds recorded by RecordingNotifier
const (
	EventRequestUpdate = "request_update"
	EventApproval      = "approval"
	EventOrderCreated  = "order_created"
	EventTransition    = "transition"
	EventStatistics    = "statistics"
	EventPersonal      = "personal"
)

// Event is one recorded notifier call
type Event struct {
	Kind       string
	Action     string
	Request    model.PurchaseRequest
	Approval   notification.ApprovalUpdate
	Order      notification.OrderCreated
	Transition notification.WorkflowTransition
	Stats      *model.Statistics
	UserID     uuid.UUID
	Personal   notification.Notification
}

// RecordingNotifier captures every broadcast in call order
type RecordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *RecordingNotifier) record(e Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *RecordingNotifier) BroadcastRequestUpdate(req *model.PurchaseRequest, action string) {
	n.record(Event{Kind: EventRequestUpdate, Request: *req, Action: action})
}

func (n *RecordingNotifier) BroadcastApprovalUpdate(u notification.ApprovalUpdate) {
	n.record(Event{Kind: EventApproval, Approval: u})
}

func (n *RecordingNotifier) BroadcastPurchaseOrderCreated(o notification.OrderCreated) {
	n.record(Event{Kind: EventOrderCreated, Order: o})
}

func (n *RecordingNotifier) BroadcastWorkflowTransition(t notification.WorkflowTransition) {
	n.record(Event{Kind: EventTransition, Transition: t})
}

func (n *RecordingNotifier) BroadcastStatistics(stats *model.Statistics) {
	n.record(Event{Kind: EventStatistics, Stats: stats})
}

func (n *RecordingNotifier) SendPersonal(userID uuid.UUID, msg notification.Notification) {
	n.record(Event{Kind: EventPersonal, UserID: userID, Personal: msg})
}

// Events returns a copy of everything recorded so far
func (n *RecordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

// Count returns how many events of kind were recorded
func (n *RecordingNotifier) Count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Kind == kind {
			c++
		}
	}
	return c
}

// Transitions returns the recorded workflow transitions in order
func (n *RecordingNotifier) Transitions() []notification.WorkflowTransition {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification.WorkflowTransition
	for _, e := range n.events {
		if e.Kind == EventTransition {
			out = append(out, e.Transition)
		}
	}
	return out
}
