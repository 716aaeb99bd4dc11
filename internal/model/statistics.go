package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statistics aggregates request counts and amounts for the dashboard
type Statistics struct {
	TotalRequests       int64            `json:"total_requests"`
	PendingRequests     int64            `json:"pending_requests"`
	ApprovedRequests    int64            `json:"approved_requests"`
	RejectedRequests    int64            `json:"rejected_requests"`
	TotalSpent          decimal.Decimal  `json:"total_spent"`    // sum over COMPLETED requests
	PendingAmount       decimal.Decimal  `json:"pending_amount"` // sum over PENDING requests
	RequestsThisWeek    int64            `json:"requests_this_week"`
	DepartmentBreakdown map[string]int64 `json:"department_breakdown"`
	StatusBreakdown     map[string]int64 `json:"status_breakdown"`
	OrderBreakdown      map[string]int64 `json:"order_breakdown"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// GroupCount is one row of a GROUP BY count query
type GroupCount struct {
	Name  string
	Count int64
}
