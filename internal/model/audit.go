package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateRequest   = "CREATE_PURCHASE_REQUEST"
	ActionCancelRequest   = "CANCEL_PURCHASE_REQUEST"
	ActionCompleteRequest = "COMPLETE_PURCHASE_REQUEST"

	// Approval workflow actions
	ActionAutoApproveRequest = "AUTO_APPROVE_REQUEST"
	ActionEscalateRequest    = "ESCALATE_REQUEST"
	ActionApproveRequest     = "APPROVE_REQUEST"
	ActionRejectRequest      = "REJECT_REQUEST"
	ActionAssignReviewer     = "ASSIGN_REVIEWER"

	// Fulfillment actions
	ActionGenerateOrder = "GENERATE_PURCHASE_ORDER"
	ActionConfirmOrder  = "CONFIRM_PURCHASE_ORDER"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil when the engine acts without an attributable user
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
