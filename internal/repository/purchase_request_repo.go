package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"procureflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PurchaseRequestRepository interface {
	Create(ctx context.Context, req *model.PurchaseRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	// FindByIDForUpdate locks the row for the rest of the surrounding transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	ListByStatus(ctx context.Context, status model.RequestStatus) ([]model.PurchaseRequest, error)
	List(ctx context.Context, filter RequestListFilter) ([]model.PurchaseRequest, int64, error)
	Update(ctx context.Context, req *model.PurchaseRequest) error
	NextRequestNumber(ctx context.Context) (string, error)
}

// RequestListFilter narrows List; zero fields match everything
type RequestListFilter struct {
	Status      string
	AssignedTo  *uuid.UUID
	RequestedBy *uuid.UUID
	Page        int
	Limit       int
}

func (f RequestListFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.AssignedTo != nil {
		db = db.Where("assigned_to = ?", *f.AssignedTo)
	}
	if f.RequestedBy != nil {
		db = db.Where("requested_by = ?", *f.RequestedBy)
	}
	return db
}

type purchaseRequestRepository struct {
	db *gorm.DB
}

func NewPurchaseRequestRepository(db *gorm.DB) PurchaseRequestRepository {
	return &purchaseRequestRepository{db: db}
}

func (r *purchaseRequestRepository) Create(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *purchaseRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := GetDB(ctx, r.db).Preload("Requester").Preload("Assignee").First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (r *purchaseRequestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := forUpdate(ctx, GetDB(ctx, r.db)).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (r *purchaseRequestRepository) ListByStatus(ctx context.Context, status model.RequestStatus) ([]model.PurchaseRequest, error) {
	var requests []model.PurchaseRequest
	if err := GetDB(ctx, r.db).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *purchaseRequestRepository) List(ctx context.Context, filter RequestListFilter) ([]model.PurchaseRequest, int64, error) {
	var requests []model.PurchaseRequest
	var total int64

	db := GetDB(ctx, r.db)
	if err := filter.apply(db.Model(&model.PurchaseRequest{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := filter.apply(db.Preload("Requester").Preload("Assignee")).
		Order("created_at DESC").Offset(offset).Limit(filter.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// Update writes the mutable workflow columns of a single request keyed by id
func (r *purchaseRequestRepository) Update(ctx context.Context, req *model.PurchaseRequest) error {
	req.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]interface{}{
			"status":      req.Status,
			"assigned_to": req.AssignedTo,
			"updated_at":  req.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// NextRequestNumber derives PR-YYYYMMDD-NNNNN from the highest number issued today
func (r *purchaseRequestRepository) NextRequestNumber(ctx context.Context) (string, error) {
	return nextNumber(ctx, GetDB(ctx, r.db), &model.PurchaseRequest{}, "request_number", "PR")
}

func nextNumber(ctx context.Context, db *gorm.DB, table interface{}, column, kind string) (string, error) {
	prefix := kind + "-" + time.Now().Format("20060102") + "-"

	// Serialize number generation across concurrent postgres transactions
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
			return "", fmt.Errorf("failed to lock %s sequence: %w", kind, err)
		}
	}

	// Longer suffixes sort first so 100000 ranks above 99999
	var latest []string
	if err := db.Model(table).
		Where(column+" LIKE ?", prefix+"%").
		Order("LENGTH(" + column + ") DESC").
		Order(column + " DESC").
		Limit(1).
		Pluck(column, &latest).Error; err != nil {
		return "", err
	}

	var seq int
	if len(latest) > 0 {
		n, err := strconv.Atoi(strings.TrimPrefix(latest[0], prefix))
		if err != nil {
			return "", fmt.Errorf("malformed %s number %q: %w", kind, latest[0], err)
		}
		seq = n
	}
	return fmt.Sprintf("%s%05d", prefix, seq+1), nil
}
