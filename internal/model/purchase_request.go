package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RequestStatus is the lifecycle state of a purchase request
type RequestStatus string

const (
	RequestPending     RequestStatus = "PENDING"
	RequestUnderReview RequestStatus = "UNDER_REVIEW"
	RequestApproved    RequestStatus = "APPROVED"
	RequestRejected    RequestStatus = "REJECTED"
	RequestInProgress  RequestStatus = "IN_PROGRESS"
	RequestCompleted   RequestStatus = "COMPLETED"
	RequestCancelled   RequestStatus = "CANCELLED"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:     {RequestApproved, RequestUnderReview, RequestCancelled},
	RequestUnderReview: {RequestApproved, RequestRejected, RequestCancelled},
	RequestApproved:    {RequestInProgress, RequestCancelled},
	RequestInProgress:  {RequestCompleted, RequestCancelled},
}

// CanTransitionTo reports whether next is a legal edge from s
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for REJECTED, COMPLETED and CANCELLED
func (s RequestStatus) IsTerminal() bool {
	return len(requestTransitions[s]) == 0
}

func (s RequestStatus) String() string {
	return string(s)
}

// Priority of a purchase request
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// PurchaseRequest is created by the intake path in PENDING and then driven by the workflow engine
type PurchaseRequest struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RequestNumber        string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"request_number"`
	Title                string          `gorm:"type:varchar(255);not null" json:"title"`
	Description          string          `gorm:"type:text" json:"description"`
	Department           string          `gorm:"type:varchar(100);not null;index" json:"department"`
	Priority             Priority        `gorm:"type:varchar(20);not null" json:"priority"`
	Status               RequestStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_amount"`
	Justification        string          `gorm:"type:text" json:"justification"`
	ExpectedDeliveryDate *time.Time      `json:"expected_delivery_date"`
	RequestedBy          uuid.UUID       `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester            *User           `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	AssignedTo           *uuid.UUID      `gorm:"type:uuid;index" json:"assigned_to"` // weak ref, reviewer may be reassigned or deleted
	Assignee             *User           `gorm:"foreignKey:AssignedTo;constraint:OnDelete:SET NULL" json:"assignee,omitempty"`
	CreatedAt            time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (r *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
