package service

import (
	"context"
	"time"

	"procureflow/internal/model"
	"procureflow/internal/repository"
)

type StatisticsService interface {
	// Snapshot aggregates request counts and amounts across all departments
	Snapshot(ctx context.Context) (*model.Statistics, error)
}

type statisticsService struct {
	stats  repository.StatisticsRepository
	orders repository.PurchaseOrderRepository
	now    func() time.Time
}

func NewStatisticsService(stats repository.StatisticsRepository, orders repository.PurchaseOrderRepository) StatisticsService {
	return &statisticsService{stats: stats, orders: orders, now: time.Now}
}

func (s *statisticsService) Snapshot(ctx context.Context) (*model.Statistics, error) {
	now := s.now()
	out := &model.Statistics{
		DepartmentBreakdown: map[string]int64{},
		StatusBreakdown:     map[string]int64{},
		OrderBreakdown:      map[string]int64{},
		GeneratedAt:         now,
	}

	var err error
	if out.TotalRequests, err = s.stats.CountRequests(ctx); err != nil {
		return nil, err
	}
	if out.RequestsThisWeek, err = s.stats.CountRequestsSince(ctx, now.AddDate(0, 0, -7)); err != nil {
		return nil, err
	}
	if out.TotalSpent, err = s.stats.SumAmountByStatus(ctx, model.RequestCompleted); err != nil {
		return nil, err
	}
	if out.PendingAmount, err = s.stats.SumAmountByStatus(ctx, model.RequestPending); err != nil {
		return nil, err
	}

	byStatus, err := s.stats.CountRequestsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		out.StatusBreakdown[row.Name] = row.Count
	}
	out.PendingRequests = out.StatusBreakdown[string(model.RequestPending)]
	out.ApprovedRequests = out.StatusBreakdown[string(model.RequestApproved)]
	out.RejectedRequests = out.StatusBreakdown[string(model.RequestRejected)]

	byDepartment, err := s.stats.CountRequestsByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range byDepartment {
		out.DepartmentBreakdown[row.Name] = row.Count
	}

	byOrderStatus, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range byOrderStatus {
		out.OrderBreakdown[row.Name] = row.Count
	}

	return out, nil
}
