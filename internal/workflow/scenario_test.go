package workflow

import (
	"context"
	"testing"

	"procureflow/internal/model"
	"procureflow/internal/notification"
	"procureflow/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Office chairs for HR: auto-approved under the general limit, ordered from the
// furniture supplier and acknowledged by it.
func TestScenario_OfficeChairsForHR(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := e.request(t, testutil.RequestFixture{
		Title:      "Office chairs",
		Department: "HR",
		Priority:   model.PriorityMedium,
		Amount:     "40000",
	})

	res, err := e.router.Route(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, AutoApprove, res.Decision.Verdict)
	assert.Equal(t, RuleGeneralLimit, res.Decision.Rule)
	assert.Equal(t, model.RequestApproved, e.reload(t, req.ID).Status)

	order, err := e.fulfillment.Generate(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Supplier C", order.SupplierName)
	assert.Equal(t, "orders@supplierc.com", order.SupplierEmail)
	assert.Equal(t, "Company Address - HR Department", order.DeliveryAddress)
	assert.Equal(t, model.OrderPending, order.Status)
	assert.Equal(t, "40000.00", order.TotalAmount.StringFixed(2))
	assert.Equal(t, model.RequestInProgress, e.reload(t, req.ID).Status)

	require.NoError(t, e.fulfillment.Confirm(ctx, order.ID))
	stored, err := e.store.Orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, stored.Status)

	var path []string
	for _, tr := range e.notifier.Transitions() {
		path = append(path, tr.FromStatus+"->"+tr.ToStatus)
	}
	assert.Equal(t, []string{"PENDING->APPROVED", "APPROVED->IN_PROGRESS", "IN_PROGRESS->CONFIRMED"}, path)
	assert.Equal(t, []string{model.ActionAutoApproveRequest}, e.auditActions(t, req.ID.String()))
	assert.Equal(t, []string{model.ActionGenerateOrder, model.ActionConfirmOrder}, e.auditActions(t, order.ID.String()))
}

// A high priority Finance purchase over every limit lands with the Finance
// manager rather than any other manager.
func TestScenario_LargeFinanceRequestEscalates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	testutil.CreateUser(t, e.db, "manager.it", model.RoleManager, "IT")
	finance := testutil.CreateUser(t, e.db, "manager.finance", model.RoleManager, "Finance")
	req := e.request(t, testutil.RequestFixture{
		Title:      "Trading terminals",
		Department: "Finance",
		Priority:   model.PriorityHigh,
		Amount:     "90000",
	})

	res, err := e.router.Route(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, Escalate, res.Decision.Verdict)

	got := e.reload(t, req.ID)
	assert.Equal(t, model.RequestUnderReview, got.Status)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, finance.ID, *got.AssignedTo)
	require.NotNil(t, got.Assignee)
	assert.Equal(t, "manager.finance", got.Assignee.Username)
	assert.Empty(t, e.approvals(t, req.ID))
	assert.Zero(t, e.countOrders(t, req.ID))

	var personal []testutil.Event
	for _, ev := range e.notifier.Events() {
		if ev.Kind == testutil.EventPersonal {
			personal = append(personal, ev)
		}
	}
	require.Len(t, personal, 1)
	assert.Equal(t, finance.ID, personal[0].UserID)
	assert.Equal(t, notification.TypeReviewAssignment, personal[0].Personal.Type)
	assert.Equal(t, notification.PriorityHigh, personal[0].Personal.Priority)
}
