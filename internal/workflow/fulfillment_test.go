package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"procureflow/internal/model"
	"procureflow/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerate_CreatesOrder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := e.request(t, testutil.RequestFixture{Title: "Developer laptops", Department: "IT", Amount: "1234.50", Status: model.RequestApproved})

	order, err := e.fulfillment.Generate(ctx, req.ID)
	require.NoError(t, err)

	assert.Regexp(t, `^PO-\d{8}-00001$`, order.OrderNumber)
	assert.Equal(t, model.OrderPending, order.Status)
	assert.True(t, decimal.RequireFromString("1234.50").Equal(order.TotalAmount))
	assert.Equal(t, "Supplier A", order.SupplierName)
	assert.Equal(t, "orders@suppliera.com", order.SupplierEmail)
	assert.Equal(t, "Company Address - IT Department", order.DeliveryAddress)
	assert.Equal(t, "Auto-generated PO from approved request "+req.RequestNumber, order.Notes)
	assert.Equal(t, e.system.ID, order.CreatedBy)
	assert.Equal(t, req.ID, order.PurchaseRequestID)

	assert.Equal(t, model.RequestInProgress, e.reload(t, req.ID).Status)
	assert.Equal(t, []string{model.ActionGenerateOrder}, e.auditActions(t, order.ID.String()))

	events := e.notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, testutil.EventOrderCreated, events[0].Kind)
	assert.Equal(t, order.OrderNumber, events[0].Order.OrderNumber)
	assert.Equal(t, testutil.EventTransition, events[1].Kind)
	assert.Equal(t, "APPROVED", events[1].Transition.FromStatus)
	assert.Equal(t, "IN_PROGRESS", events[1].Transition.ToStatus)
}

func TestGenerate_FallsBackToRequester(t *testing.T) {
	e := newTestEngine(t)
	f := NewFulfillment(e.store, e.notifier, e.pool, FulfillmentConfig{
		ConfirmMinDelay: time.Hour,
		ConfirmMaxDelay: time.Hour,
		SystemUserID:    uuid.New(),
	}, zap.NewNop())
	req := e.request(t, testutil.RequestFixture{Status: model.RequestApproved})

	order, err := f.Generate(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, e.requester.ID, order.CreatedBy)
}

func TestGenerate_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := e.request(t, testutil.RequestFixture{Status: model.RequestApproved})

	_, err := e.fulfillment.Generate(ctx, req.ID)
	require.NoError(t, err)
	_, err = e.fulfillment.Generate(ctx, req.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	assert.EqualValues(t, 1, e.countOrders(t, req.ID))
	assert.Equal(t, 1, e.notifier.Count(testutil.EventOrderCreated))
}

func TestGenerate_RequiresApprovedRequest(t *testing.T) {
	for _, status := range []model.RequestStatus{
		model.RequestPending, model.RequestUnderReview, model.RequestRejected, model.RequestCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			e := newTestEngine(t)
			req := e.request(t, testutil.RequestFixture{Status: status})

			_, err := e.fulfillment.Generate(context.Background(), req.ID)
			require.ErrorIs(t, err, ErrPreconditionFailed)
			assert.Zero(t, e.countOrders(t, req.ID))
			assert.Equal(t, status, e.reload(t, req.ID).Status)
		})
	}
}

func TestGenerate_SkipsRequestWithExistingOrder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := e.request(t, testutil.RequestFixture{Status: model.RequestApproved})
	require.NoError(t, e.store.Orders.Create(ctx, &model.PurchaseOrder{
		OrderNumber:       "PO-MANUAL-1",
		Status:            model.OrderPending,
		TotalAmount:       req.TotalAmount,
		PurchaseRequestID: req.ID,
		CreatedBy:         e.requester.ID,
	}))

	_, err := e.fulfillment.Generate(ctx, req.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Equal(t, model.RequestApproved, e.reload(t, req.ID).Status)
}

func TestGenerate_ConcurrentAttemptsCreateOneOrder(t *testing.T) {
	e := newTestEngine(t)
	req := e.request(t, testutil.RequestFixture{Status: model.RequestApproved})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.fulfillment.Generate(context.Background(), req.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 1, e.countOrders(t, req.ID))
	assert.Equal(t, 1, e.notifier.Count(testutil.EventOrderCreated))
}

func TestGenerate_SequentialOrderNumbers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.fulfillment.Generate(ctx, e.request(t, testutil.RequestFixture{Status: model.RequestApproved}).ID)
	require.NoError(t, err)
	second, err := e.fulfillment.Generate(ctx, e.request(t, testutil.RequestFixture{Status: model.RequestApproved}).ID)
	require.NoError(t, err)

	assert.Regexp(t, `-00001$`, first.OrderNumber)
	assert.Regexp(t, `-00002$`, second.OrderNumber)
}

func TestDispatch_GeneratesAndConfirms(t *testing.T) {
	e := newTestEngine(t)
	e.runTimersNow()
	req := e.request(t, testutil.RequestFixture{Status: model.RequestApproved})

	done := make(chan struct{})
	e.fulfillment.Dispatch(req.ID, func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not finish")
	}

	require.Eventually(t, func() bool {
		order, err := e.store.Orders.FindByRequestID(context.Background(), req.ID)
		return err == nil && order.Status == model.OrderConfirmed
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(e.notifier.Transitions()) == 2
	}, time.Second, 10*time.Millisecond)
	last := e.notifier.Transitions()[1]
	assert.Equal(t, "IN_PROGRESS", last.FromStatus)
	assert.Equal(t, "CONFIRMED", last.ToStatus)
}

func TestDispatch_DoneRunsOnPreconditionFailure(t *testing.T) {
	e := newTestEngine(t)
	e.runTimersNow()
	req := e.request(t, testutil.RequestFixture{Status: model.RequestCancelled})

	done := make(chan struct{})
	e.fulfillment.Dispatch(req.ID, func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("done was not called")
	}
	assert.Zero(t, e.countOrders(t, req.ID))
}

func TestConfirm_SkipsCancelledRequest(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := e.request(t, testutil.RequestFixture{Status: model.RequestApproved})
	order, err := e.fulfillment.Generate(ctx, req.ID)
	require.NoError(t, err)

	require.NoError(t, e.db.Model(&model.PurchaseRequest{}).Where("id = ?", req.ID).Update("status", model.RequestCancelled).Error)

	err = e.fulfillment.Confirm(ctx, order.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	stored, err := e.store.Orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, stored.Status)
}

func TestConfirm_OnlyOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := e.request(t, testutil.RequestFixture{Status: model.RequestApproved})
	order, err := e.fulfillment.Generate(ctx, req.ID)
	require.NoError(t, err)

	require.NoError(t, e.fulfillment.Confirm(ctx, order.ID))
	require.ErrorIs(t, e.fulfillment.Confirm(ctx, order.ID), ErrPreconditionFailed)
	assert.Equal(t, []string{model.ActionGenerateOrder, model.ActionConfirmOrder}, e.auditActions(t, order.ID.String()))
}

func TestConfirm_ReportsRequestStatusAtConfirmation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := e.request(t, testutil.RequestFixture{Status: model.RequestApproved})
	order, err := e.fulfillment.Generate(ctx, req.ID)
	require.NoError(t, err)

	// Goods arrived before the supplier acknowledged the order.
	require.NoError(t, e.db.Model(&model.PurchaseRequest{}).Where("id = ?", req.ID).Update("status", model.RequestCompleted).Error)

	require.NoError(t, e.fulfillment.Confirm(ctx, order.ID))

	transitions := e.notifier.Transitions()
	require.Len(t, transitions, 2)
	assert.Equal(t, "COMPLETED", transitions[1].FromStatus)
	assert.Equal(t, "CONFIRMED", transitions[1].ToStatus)
}

func TestConfirmationDelayWindow(t *testing.T) {
	e := newTestEngine(t)
	e.fulfillment.cfg.ConfirmMinDelay = 30 * time.Second
	e.fulfillment.cfg.ConfirmMaxDelay = 60 * time.Second

	for i := 0; i < 100; i++ {
		d := e.fulfillment.confirmationDelay()
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.LessOrEqual(t, d, 60*time.Second)
	}

	e.fulfillment.cfg.ConfirmMaxDelay = e.fulfillment.cfg.ConfirmMinDelay
	assert.Equal(t, 30*time.Second, e.fulfillment.confirmationDelay())
}
