package repository

import (
	"context"
	"time"

	"procureflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PurchaseOrderRepository interface {
	Create(ctx context.Context, order *model.PurchaseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	FindByRequestID(ctx context.Context, requestID uuid.UUID) (*model.PurchaseOrder, error)
	ExistsForRequest(ctx context.Context, requestID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error
	CountByStatus(ctx context.Context) ([]model.GroupCount, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

type purchaseOrderRepository struct {
	db *gorm.DB
}

func NewPurchaseOrderRepository(db *gorm.DB) PurchaseOrderRepository {
	return &purchaseOrderRepository{db: db}
}

func (r *purchaseOrderRepository) Create(ctx context.Context, order *model.PurchaseOrder) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *purchaseOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *purchaseOrderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	if err := forUpdate(ctx, GetDB(ctx, r.db)).First(&order, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *purchaseOrderRepository) FindByRequestID(ctx context.Context, requestID uuid.UUID) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	if err := GetDB(ctx, r.db).First(&order, "purchase_request_id = ?", requestID).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *purchaseOrderRepository) ExistsForRequest(ctx context.Context, requestID uuid.UUID) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).
		Where("purchase_request_id = ?", requestID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *purchaseOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	res := GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *purchaseOrderRepository) CountByStatus(ctx context.Context) ([]model.GroupCount, error) {
	var rows []model.GroupCount
	if err := GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).
		Select("status AS name, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// NextOrderNumber derives PO-YYYYMMDD-NNNNN from the highest number issued today
func (r *purchaseOrderRepository) NextOrderNumber(ctx context.Context) (string, error) {
	return nextNumber(ctx, GetDB(ctx, r.db), &model.PurchaseOrder{}, "order_number", "PO")
}
