package repository

import (
	"context"
	"errors"

	"github.com/Nihad1903/azmiu-guest-web/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GuestRequestRepository defines persistence operations for guest requests.
// Status transitions are not done here: the workflow service owns them
// inside its own transactions.
type GuestRequestRepository interface {
	Create(ctx context.Context, req *models.GuestRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GuestRequest, error)
	ListByManager(ctx context.Context, managerID uuid.UUID, limit, offset int) ([]models.GuestRequest, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.GuestRequest, error)
	ListByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]models.GuestRequest, error)
	DeletePending(ctx context.Context, id uuid.UUID) (bool, error)
}

type guestRequestRepository struct {
	db *gorm.DB
}

// NewGuestRequestRepository returns a new GuestRequestRepository implementation.
func NewGuestRequestRepository(db *gorm.DB) GuestRequestRepository {
	return &guestRequestRepository{db: db}
}

func (r *guestRequestRepository) Create(ctx context.Context, req *models.GuestRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *guestRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GuestRequest, error) {
	var req models.GuestRequest
	err := r.db.WithContext(ctx).
		Preload("Manager").
		Preload("ReviewedBy").
		First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Guest request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *guestRequestRepository) ListByManager(ctx context.Context, managerID uuid.UUID, limit, offset int) ([]models.GuestRequest, error) {
	return r.list(ctx, r.db.Where("manager_id = ?", managerID), limit, offset)
}

func (r *guestRequestRepository) ListAll(ctx context.Context, limit, offset int) ([]models.GuestRequest, error) {
	return r.list(ctx, r.db, limit, offset)
}

func (r *guestRequestRepository) ListByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]models.GuestRequest, error) {
	return r.list(ctx, r.db.Where("status = ?", status), limit, offset)
}

func (r *guestRequestRepository) list(ctx context.Context, q *gorm.DB, limit, offset int) ([]models.GuestRequest, error) {
	var reqs []models.GuestRequest
	err := q.WithContext(ctx).
		Preload("Manager").
		Preload("ReviewedBy").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reqs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

// DeletePending removes the request only while it is still PENDING, so
// a review committing concurrently cannot be wiped out. Reports whether
// a row was deleted.
func (r *guestRequestRepository) DeletePending(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.RequestStatusPending).
		Delete(&models.GuestRequest{})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}
