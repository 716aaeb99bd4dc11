package repository

import (
	"context"
	"fmt"
	"time"

	"procureflow/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StatisticsRepository interface {
	CountRequests(ctx context.Context) (int64, error)
	CountRequestsSince(ctx context.Context, since time.Time) (int64, error)
	SumAmountByStatus(ctx context.Context, status model.RequestStatus) (decimal.Decimal, error)
	CountRequestsByStatus(ctx context.Context) ([]model.GroupCount, error)
	CountRequestsByDepartment(ctx context.Context) ([]model.GroupCount, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) CountRequests(ctx context.Context) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return count, nil
}

func (r *statisticsRepository) CountRequestsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Where("created_at >= ?", since).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count recent requests: %w", err)
	}
	return count, nil
}

func (r *statisticsRepository) SumAmountByStatus(ctx context.Context, status model.RequestStatus) (decimal.Decimal, error) {
	var result struct {
		Value string
	}
	if err := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Select("COALESCE(CAST(SUM(total_amount) AS TEXT), '0') as value").
		Where("status = ?", status).
		Scan(&result).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum %s amount: %w", status, err)
	}
	sum, err := decimal.NewFromString(result.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s amount %q: %w", status, result.Value, err)
	}
	return sum, nil
}

func (r *statisticsRepository) CountRequestsByStatus(ctx context.Context) ([]model.GroupCount, error) {
	return r.groupCount(ctx, "status")
}

func (r *statisticsRepository) CountRequestsByDepartment(ctx context.Context) ([]model.GroupCount, error) {
	return r.groupCount(ctx, "department")
}

func (r *statisticsRepository) groupCount(ctx context.Context, column string) ([]model.GroupCount, error) {
	var rows []model.GroupCount
	if err := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Select(column + " AS name, COUNT(*) AS count").
		Group(column).
		Order(column).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count requests by %s: %w", column, err)
	}
	return rows, nil
}
