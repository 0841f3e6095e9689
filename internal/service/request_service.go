// Package service implements the guest request workflow: submission,
// review, NOVUS provisioning and deletion.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Nihad1903/azmiu-guest-web/internal/middleware"
	"github.com/Nihad1903/azmiu-guest-web/internal/models"
	"github.com/Nihad1903/azmiu-guest-web/internal/novus"
	"github.com/Nihad1903/azmiu-guest-web/internal/repository"
	"github.com/Nihad1903/azmiu-guest-web/internal/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Provisioner creates the guest user, QR card and credential on the
// access-control provider. Implemented by novus.ProvisionService.
type Provisioner interface {
	Provision(ctx context.Context, g novus.Guest) (*novus.Result, error)
}

// SubmitRequestInput carries the caller-supplied fields for a new request.
type SubmitRequestInput struct {
	GuestName    string `json:"guest_name"`
	GuestSurname string `json:"guest_surname"`
	GuestEmail   string `json:"guest_email"`
	GuestPhone   string `json:"guest_phone"`
	Remark       string `json:"remark"`
}

// RequestService handles guest request lifecycle operations.
//
// Approve and Reject run inside database transactions so that a request
// can only ever leave PENDING once, even under concurrent reviews. The
// service holds the *gorm.DB directly for that reason; reads and simple
// writes go through the repository.
type RequestService struct {
	db          *gorm.DB
	requests    repository.GuestRequestRepository
	provisioner Provisioner
	logger      *slog.Logger
}

// NewRequestService creates a RequestService.
func NewRequestService(db *gorm.DB, requests repository.GuestRequestRepository, provisioner Provisioner, logger *slog.Logger) *RequestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestService{db: db, requests: requests, provisioner: provisioner, logger: logger}
}

// Submit validates the input and creates a PENDING request owned by the
// given manager.
func (s *RequestService) Submit(ctx context.Context, managerID uuid.UUID, input SubmitRequestInput) (*models.GuestRequest, error) {
	if err := validation.ValidateGuestName("guest_name", input.GuestName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateGuestName("guest_surname", input.GuestSurname); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(input.GuestEmail); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePhone(input.GuestPhone); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateRemark(input.Remark); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	req := &models.GuestRequest{
		ManagerID:    managerID,
		GuestName:    strings.TrimSpace(input.GuestName),
		GuestSurname: strings.TrimSpace(input.GuestSurname),
		GuestEmail:   strings.TrimSpace(input.GuestEmail),
		GuestPhone:   strings.TrimSpace(input.GuestPhone),
		Remark:       input.Remark,
		Status:       models.RequestStatusPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "guest request submitted",
		"request_id", req.ID,
		"manager_id", managerID)
	return req, nil
}

// Get returns a single request by id.
func (s *RequestService) Get(ctx context.Context, id uuid.UUID) (*models.GuestRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// ListMine returns the requests owned by the given manager, newest first.
func (s *RequestService) ListMine(ctx context.Context, managerID uuid.UUID, limit, offset int) ([]models.GuestRequest, error) {
	return s.requests.ListByManager(ctx, managerID, limit, offset)
}

// ListAll returns every request, newest first.
func (s *RequestService) ListAll(ctx context.Context, limit, offset int) ([]models.GuestRequest, error) {
	return s.requests.ListAll(ctx, limit, offset)
}

// ListPending returns requests still awaiting review, newest first.
func (s *RequestService) ListPending(ctx context.Context, limit, offset int) ([]models.GuestRequest, error) {
	return s.requests.ListByStatus(ctx, models.RequestStatusPending, limit, offset)
}

// Approve provisions the guest on NOVUS and marks the request APPROVED.
//
// The provider sequence runs inside the database transaction: if any
// provisioning step fails, the transaction rolls back and the request
// stays PENDING with no provider identifiers stored. On success the
// status flip and all four provider fields are written together.
func (s *RequestService) Approve(ctx context.Context, id, reviewerID uuid.UUID) (*models.GuestRequest, error) {
	var approved *models.GuestRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.lockRequest(tx, id)
		if err != nil {
			return err
		}
		if !req.IsPending() {
			return models.NewWorkflowStateError("approve", req.Status)
		}

		result, provErr := s.provisioner.Provision(ctx, novus.Guest{
			FirstName: req.GuestName,
			LastName:  req.GuestSurname,
			Email:     req.GuestEmail,
			Remark:    req.Remark,
		})
		if provErr != nil {
			middleware.ProvisioningAttempts.WithLabelValues("failure").Inc()
			s.logger.ErrorContext(ctx, "provisioning failed, rolling back approval",
				"request_id", req.ID,
				"error", provErr)
			return models.NewProvisioningError(provErr)
		}
		middleware.ProvisioningAttempts.WithLabelValues("success").Inc()

		now := time.Now().UTC()
		updates := map[string]any{
			"status":              models.RequestStatusApproved,
			"reviewed_by_id":      reviewerID,
			"reviewed_at":         now,
			"novus_user_id":       result.UserID,
			"novus_card_id":       result.CardID,
			"novus_credential_id": result.CredentialID,
			"qr_number":           result.CardNumber,
		}
		res := tx.Model(&models.GuestRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestStatusPending).
			Updates(updates)
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost a race to another reviewer after the provider
			// calls already succeeded. The provider records are
			// left in place; the other transition wins.
			return models.NewWorkflowStateError("approve", req.Status)
		}

		req.Status = models.RequestStatusApproved
		req.ReviewedByID = &reviewerID
		req.ReviewedAt = &now
		req.NovusUserID = &result.UserID
		req.NovusCardID = &result.CardID
		req.NovusCredentialID = &result.CredentialID
		req.QRNumber = &result.CardNumber
		approved = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "guest request approved",
		"request_id", approved.ID,
		"reviewer_id", reviewerID)
	return approved, nil
}

// Reject marks the request REJECTED with the given reason. No provider
// calls are made.
func (s *RequestService) Reject(ctx context.Context, id, reviewerID uuid.UUID, reason string) (*models.GuestRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("rejection reason is required")
	}

	var rejected *models.GuestRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.lockRequest(tx, id)
		if err != nil {
			return err
		}
		if !req.IsPending() {
			return models.NewWorkflowStateError("reject", req.Status)
		}

		now := time.Now().UTC()
		res := tx.Model(&models.GuestRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestStatusPending).
			Updates(map[string]any{
				"status":           models.RequestStatusRejected,
				"rejection_reason": reason,
				"reviewed_by_id":   reviewerID,
				"reviewed_at":      now,
			})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewWorkflowStateError("reject", req.Status)
		}

		req.Status = models.RequestStatusRejected
		req.RejectionReason = reason
		req.ReviewedByID = &reviewerID
		req.ReviewedAt = &now
		rejected = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "guest request rejected",
		"request_id", rejected.ID,
		"reviewer_id", reviewerID)
	return rejected, nil
}

// Delete removes a request. Only the owning manager may delete, and only
// while the request is still PENDING.
func (s *RequestService) Delete(ctx context.Context, id, callerID uuid.UUID) error {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.ManagerID != callerID {
		return models.NewPermissionError("only the requesting manager can delete this request")
	}
	if !req.IsPending() {
		return models.NewWorkflowStateError("delete", req.Status)
	}

	// Guarded delete: a review can commit between the read above and
	// here, and a reviewed request must never be removed.
	deleted, err := s.requests.DeletePending(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		current, gerr := s.requests.GetByID(ctx, id)
		if gerr != nil {
			return gerr
		}
		return models.NewWorkflowStateError("delete", current.Status)
	}

	s.logger.InfoContext(ctx, "guest request deleted",
		"request_id", id,
		"manager_id", callerID)
	return nil
}

// lockRequest re-reads the request inside tx, taking a row lock on
// dialects that support it. SQLite has a single writer, so the guarded
// status update alone is enough there.
func (s *RequestService) lockRequest(tx *gorm.DB, id uuid.UUID) (*models.GuestRequest, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var req models.GuestRequest
	if err := q.First(&req, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("guest request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}
