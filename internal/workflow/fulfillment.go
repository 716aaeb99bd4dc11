package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"procureflow/internal/model"
	"procureflow/internal/notification"
	"procureflow/internal/repository"
	"procureflow/internal/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FulfillmentConfig tunes the simulated supplier latencies
type FulfillmentConfig struct {
	ProcessingDelay         time.Duration
	ConfirmMinDelay         time.Duration
	ConfirmMaxDelay         time.Duration
	DeliveryAddressTemplate string
	SystemUserID            uuid.UUID
}

// Fulfillment turns approved requests into purchase orders and later confirms them
type Fulfillment struct {
	store    Store
	notifier Notifier
	pool     Submitter
	cfg      FulfillmentConfig
	log      *zap.Logger

	// afterFunc is time.AfterFunc; replaced in tests
	afterFunc func(d time.Duration, f func()) *time.Timer

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewFulfillment(store Store, notifier Notifier, pool Submitter, cfg FulfillmentConfig, log *zap.Logger) *Fulfillment {
	if cfg.DeliveryAddressTemplate == "" {
		cfg.DeliveryAddressTemplate = "Company Address - %s Department"
	}
	return &Fulfillment{
		store:     store,
		notifier:  notifier,
		pool:      pool,
		cfg:       cfg,
		log:       log,
		afterFunc: time.AfterFunc,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Dispatch schedules order generation for a request after the processing delay. done
// runs exactly once when the attempt has finished, whatever its outcome.
func (f *Fulfillment) Dispatch(requestID uuid.UUID, done func()) {
	f.afterFunc(f.cfg.ProcessingDelay, func() {
		err := f.pool.Submit(worker.Task{
			Name: "generate-order:" + requestID.String(),
			Run: func(ctx context.Context) error {
				defer done()
				_, err := f.Generate(ctx, requestID)
				if errors.Is(err, ErrPreconditionFailed) {
					f.log.Debug("skipping order generation", zap.String("request_id", requestID.String()), zap.Error(err))
					return nil
				}
				return err
			},
		})
		if err != nil {
			f.log.Warn("could not submit order generation, will retry next scan",
				zap.String("request_id", requestID.String()), zap.Error(err))
			done()
		}
	})
}

// Generate creates the purchase order of an APPROVED request and moves the request to
// IN_PROGRESS. The request must still be APPROVED and have no order; both are checked
// inside the transaction that creates the order.
func (f *Fulfillment) Generate(ctx context.Context, requestID uuid.UUID) (*model.PurchaseOrder, error) {
	var (
		req   *model.PurchaseRequest
		order *model.PurchaseOrder
	)
	err := f.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = f.store.Requests.FindByIDForUpdate(txCtx, requestID)
		if err != nil {
			return fmt.Errorf("failed to load request: %w", err)
		}
		if req.Status != model.RequestApproved || !req.Status.CanTransitionTo(model.RequestInProgress) {
			return preconditionf("request %s is %s, not APPROVED", req.ID, req.Status)
		}
		exists, err := f.store.Orders.ExistsForRequest(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("failed to check existing order: %w", err)
		}
		if exists {
			return preconditionf("request %s already has a purchase order", req.ID)
		}

		creatorID, err := f.resolveCreator(txCtx, req)
		if err != nil {
			return err
		}

		number, err := f.store.Orders.NextOrderNumber(txCtx)
		if err != nil {
			return fmt.Errorf("failed to generate order number: %w", err)
		}

		supplier := SupplierFor(req.Title)
		order = &model.PurchaseOrder{
			OrderNumber:          number,
			Status:               model.OrderPending,
			TotalAmount:          req.TotalAmount,
			SupplierName:         supplier.Name,
			SupplierContact:      supplier.Contact,
			SupplierEmail:        supplier.Email,
			DeliveryAddress:      fmt.Sprintf(f.cfg.DeliveryAddressTemplate, req.Department),
			ExpectedDeliveryDate: req.ExpectedDeliveryDate,
			Notes:                "Auto-generated PO from approved request " + req.RequestNumber,
			PurchaseRequestID:    req.ID,
			CreatedBy:            creatorID,
		}
		if err := f.store.Orders.Create(txCtx, order); err != nil {
			return fmt.Errorf("failed to create purchase order: %w", err)
		}

		req.Status = model.RequestInProgress
		if err := f.store.Requests.Update(txCtx, req); err != nil {
			return fmt.Errorf("failed to update request status: %w", err)
		}

		return writeAudit(txCtx, f.store.Audit, &creatorID, model.ActionGenerateOrder, order.ID.String(), order.OrderNumber, map[string]interface{}{
			"request_id":    req.ID.String(),
			"supplier_name": order.SupplierName,
			"total_amount":  order.TotalAmount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	f.notifier.BroadcastPurchaseOrderCreated(notification.OrderCreated{
		RequestID:    req.ID,
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		SupplierName: order.SupplierName,
		TotalAmount:  order.TotalAmount,
	})
	f.notifier.BroadcastWorkflowTransition(notification.WorkflowTransition{
		RequestID:  req.ID,
		FromStatus: model.RequestApproved.String(),
		ToStatus:   model.RequestInProgress.String(),
		Reason:     "Purchase Order " + order.OrderNumber + " generated",
	})
	f.log.Info("generated purchase order",
		zap.String("order_number", order.OrderNumber),
		zap.String("request_id", req.ID.String()),
		zap.String("supplier", order.SupplierName))

	f.scheduleConfirmation(order.ID, order.OrderNumber)
	return order, nil
}

// resolveCreator prefers the system identity and falls back to the requester
func (f *Fulfillment) resolveCreator(ctx context.Context, req *model.PurchaseRequest) (uuid.UUID, error) {
	if f.cfg.SystemUserID == uuid.Nil {
		return req.RequestedBy, nil
	}
	user, err := f.store.Users.GetByID(ctx, f.cfg.SystemUserID)
	if errors.Is(err, repository.ErrNotFound) {
		return req.RequestedBy, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load system user: %w", err)
	}
	return user.ID, nil
}

// scheduleConfirmation arms the one-shot supplier acknowledgement timer. The timer is
// never cancelled; Confirm re-checks the order when it fires.
func (f *Fulfillment) scheduleConfirmation(orderID uuid.UUID, orderNumber string) {
	delay := f.confirmationDelay()
	f.afterFunc(delay, func() {
		err := f.pool.Submit(worker.Task{
			Name: "confirm-order:" + orderNumber,
			Run: func(ctx context.Context) error {
				err := f.Confirm(ctx, orderID)
				if errors.Is(err, ErrPreconditionFailed) {
					f.log.Info("skipping order confirmation", zap.String("order_number", orderNumber), zap.Error(err))
					return nil
				}
				return err
			},
		})
		if err != nil {
			f.log.Warn("could not submit order confirmation", zap.String("order_number", orderNumber), zap.Error(err))
		}
	})
	f.log.Debug("scheduled order confirmation", zap.String("order_number", orderNumber), zap.Duration("delay", delay))
}

func (f *Fulfillment) confirmationDelay() time.Duration {
	window := f.cfg.ConfirmMaxDelay - f.cfg.ConfirmMinDelay
	if window <= 0 {
		return f.cfg.ConfirmMinDelay
	}
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return f.cfg.ConfirmMinDelay + time.Duration(f.rng.Int63n(int64(window)+1))
}

// Confirm marks a PENDING or SENT order CONFIRMED. It skips orders that moved on and
// orders whose request was cancelled in the meantime.
func (f *Fulfillment) Confirm(ctx context.Context, orderID uuid.UUID) error {
	var (
		order *model.PurchaseOrder
		from  model.RequestStatus
	)
	err := f.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = f.store.Orders.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if !order.Status.CanTransitionTo(model.OrderConfirmed) {
			return preconditionf("order %s is %s", order.OrderNumber, order.Status)
		}
		req, err := f.store.Requests.FindByIDForUpdate(txCtx, order.PurchaseRequestID)
		if err != nil {
			return fmt.Errorf("failed to load request: %w", err)
		}
		if req.Status == model.RequestCancelled {
			return preconditionf("request %s was cancelled", req.ID)
		}
		from = req.Status

		if err := f.store.Orders.UpdateStatus(txCtx, order.ID, model.OrderConfirmed); err != nil {
			return fmt.Errorf("failed to confirm order: %w", err)
		}
		order.Status = model.OrderConfirmed

		return writeAudit(txCtx, f.store.Audit, nil, model.ActionConfirmOrder, order.ID.String(), order.OrderNumber, map[string]interface{}{
			"request_id": req.ID.String(),
			"supplier":   order.SupplierName,
		})
	})
	if err != nil {
		return err
	}

	f.notifier.BroadcastWorkflowTransition(notification.WorkflowTransition{
		RequestID:  order.PurchaseRequestID,
		FromStatus: from.String(),
		ToStatus:   model.OrderConfirmed.String(),
		Reason:     "Supplier confirmed order " + order.OrderNumber,
	})
	f.log.Info("order confirmed by supplier", zap.String("order_number", order.OrderNumber))
	return nil
}
