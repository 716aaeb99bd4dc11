package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus of a purchase order. The workflow engine only drives PENDING -> CONFIRMED.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderSent      OrderStatus = "SENT"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderInTransit OrderStatus = "IN_TRANSIT"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderCompleted OrderStatus = "COMPLETED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderSent, OrderConfirmed, OrderCancelled},
	OrderSent:      {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderInTransit, OrderCancelled},
	OrderInTransit: {OrderDelivered},
	OrderDelivered: {OrderCompleted},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// PurchaseOrder is materialized exactly once from an approved PurchaseRequest.
// TotalAmount is copied from the request at creation and never recomputed.
type PurchaseOrder struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber          string           `gorm:"type:varchar(50);uniqueIndex;not null" json:"order_number"`
	Status               OrderStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount          decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"total_amount"`
	SupplierName         string           `gorm:"type:varchar(255)" json:"supplier_name"`
	SupplierContact      string           `gorm:"type:varchar(50)" json:"supplier_contact"`
	SupplierEmail        string           `gorm:"type:varchar(255)" json:"supplier_email"`
	DeliveryAddress      string           `gorm:"type:text" json:"delivery_address"`
	ExpectedDeliveryDate *time.Time       `json:"expected_delivery_date"`
	ActualDeliveryDate   *time.Time       `json:"actual_delivery_date"`
	Notes                string           `gorm:"type:text" json:"notes"`
	PurchaseRequestID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex" json:"purchase_request_id"`
	PurchaseRequest      *PurchaseRequest `gorm:"foreignKey:PurchaseRequestID" json:"-"`
	CreatedBy            uuid.UUID        `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (o *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
