package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalStatus of a single approval record
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Approval is one step of a request's approval chain, ordered by Level.
// At most one PENDING approval may exist per (request, level).
type Approval struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseRequestID uuid.UUID        `gorm:"type:uuid;not null;index" json:"purchase_request_id"`
	PurchaseRequest   *PurchaseRequest `gorm:"foreignKey:PurchaseRequestID;constraint:OnDelete:CASCADE" json:"-"`
	ApproverID        uuid.UUID        `gorm:"type:uuid;not null;index" json:"approver_id"`
	Approver          *User            `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Status            ApprovalStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Level             int              `gorm:"not null" json:"level"`
	Comments          string           `gorm:"type:text" json:"comments"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
