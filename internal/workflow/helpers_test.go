package workflow

import (
	"context"
	"testing"
	"time"

	"procureflow/internal/model"
	"procureflow/internal/repository"
	"procureflow/internal/testutil"
	"procureflow/internal/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEngine struct {
	db          *gorm.DB
	store       Store
	notifier    *testutil.RecordingNotifier
	pool        *worker.Pool
	system      *model.User
	requester   *model.User
	router      *ApprovalRouter
	fulfillment *Fulfillment
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	db := testutil.NewDB(t)

	e := &testEngine{
		db: db,
		store: Store{
			Tx:        repository.NewTransactionManager(db),
			Requests:  repository.NewPurchaseRequestRepository(db),
			Approvals: repository.NewApprovalRepository(db),
			Orders:    repository.NewPurchaseOrderRepository(db),
			Users:     repository.NewUserRepository(db),
			Audit:     repository.NewAuditRepository(db),
		},
		notifier:  &testutil.RecordingNotifier{},
		system:    testutil.CreateUser(t, db, "system", model.RoleAdmin, "Administration"),
		requester: testutil.CreateUser(t, db, "alice", model.RoleStaff, "Operations"),
	}

	var err error
	e.pool, err = worker.NewPool(4, 64, zap.NewNop())
	require.NoError(t, err)
	e.pool.Start(context.Background())
	t.Cleanup(e.pool.Stop)

	e.router = NewApprovalRouter(e.store, e.notifier, e.system.ID, zap.NewNop())
	e.fulfillment = NewFulfillment(e.store, e.notifier, e.pool, FulfillmentConfig{
		ProcessingDelay: time.Millisecond,
		ConfirmMinDelay: time.Hour,
		ConfirmMaxDelay: time.Hour,
		SystemUserID:    e.system.ID,
	}, zap.NewNop())
	return e
}

// runTimersNow makes every fulfillment timer fire synchronously
func (e *testEngine) runTimersNow() {
	e.fulfillment.afterFunc = func(_ time.Duration, f func()) *time.Timer {
		f()
		return nil
	}
}

func (e *testEngine) request(t *testing.T, fx testutil.RequestFixture) *model.PurchaseRequest {
	t.Helper()
	return testutil.CreateRequest(t, e.db, e.requester, fx)
}

func (e *testEngine) reload(t *testing.T, id uuid.UUID) *model.PurchaseRequest {
	t.Helper()
	req, err := e.store.Requests.FindByID(context.Background(), id)
	require.NoError(t, err)
	return req
}

func (e *testEngine) approvals(t *testing.T, id uuid.UUID) []model.Approval {
	t.Helper()
	list, err := e.store.Approvals.ListByRequest(context.Background(), id)
	require.NoError(t, err)
	return list
}

func (e *testEngine) countOrders(t *testing.T, requestID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.PurchaseOrder{}).Where("purchase_request_id = ?", requestID).Count(&n).Error)
	return n
}

func (e *testEngine) auditActions(t *testing.T, entityID string) []string {
	t.Helper()
	var actions []string
	require.NoError(t, e.db.Model(&model.AuditLog{}).
		Where("entity_id = ?", entityID).
		Order("created_at ASC").
		Pluck("action", &actions).Error)
	return actions
}
