package repository

import (
	"context"

	"procureflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovalRepository interface {
	Create(ctx context.Context, approval *model.Approval) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error)
	// NextLevel returns one past the highest level recorded for the request (1 for an empty chain)
	NextLevel(ctx context.Context, requestID uuid.UUID) (int, error)
	CountPendingAtLevel(ctx context.Context, requestID uuid.UUID, level int) (int64, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, approval *model.Approval) error {
	return GetDB(ctx, r.db).Create(approval).Error
}

func (r *approvalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := GetDB(ctx, r.db).
		Preload("Approver").
		Where("purchase_request_id = ?", requestID).
		Order("level ASC, created_at ASC").
		Find(&approvals).Error; err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *approvalRepository) NextLevel(ctx context.Context, requestID uuid.UUID) (int, error) {
	var maxLevel int
	if err := GetDB(ctx, r.db).Model(&model.Approval{}).
		Select("COALESCE(MAX(level), 0)").
		Where("purchase_request_id = ?", requestID).
		Scan(&maxLevel).Error; err != nil {
		return 0, err
	}
	return maxLevel + 1, nil
}

func (r *approvalRepository) CountPendingAtLevel(ctx context.Context, requestID uuid.UUID, level int) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Approval{}).
		Where("purchase_request_id = ? AND level = ? AND status = ?", requestID, level, model.ApprovalPending).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
