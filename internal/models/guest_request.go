package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus defines lifecycle states for guest QR requests.
type RequestStatus string

const (
	// RequestStatusPending indicates the request is awaiting review.
	RequestStatusPending RequestStatus = "PENDING"
	// RequestStatusApproved indicates the request was approved and provisioned.
	RequestStatusApproved RequestStatus = "APPROVED"
	// RequestStatusRejected indicates the request was denied.
	RequestStatusRejected RequestStatus = "REJECTED"
)

// GuestRequest is a manager-submitted request for a guest access credential.
//
// A request starts PENDING and transitions exactly once, to APPROVED or
// REJECTED. The four Novus* fields are written together in the same
// transaction that marks the request APPROVED; they are never partially
// populated and never modified afterwards.
type GuestRequest struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// Requesting manager; set at creation, never reassigned.
	ManagerID uuid.UUID `gorm:"type:uuid;not null;index" json:"manager_id"`
	Manager   *User     `gorm:"foreignKey:ManagerID" json:"manager,omitempty"`

	// Guest information, caller-supplied and immutable after creation.
	GuestName    string `gorm:"size:150;not null" json:"guest_name"`
	GuestSurname string `gorm:"size:150;not null" json:"guest_surname"`
	GuestEmail   string `gorm:"size:254;not null" json:"guest_email"`
	GuestPhone   string `gorm:"size:20" json:"guest_phone"`
	Remark       string `gorm:"type:text" json:"remark"`

	Status          RequestStatus `gorm:"type:varchar(10);not null;default:'PENDING';index" json:"status"`
	RejectionReason string        `gorm:"type:text" json:"rejection_reason"`
	ReviewedByID    *uuid.UUID    `gorm:"type:uuid" json:"reviewed_by_id"`
	ReviewedBy      *User         `gorm:"foreignKey:ReviewedByID" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewed_at"`

	// Identifiers assigned by the NOVUS provider on successful
	// provisioning. QRNumber is the provider-authoritative card number
	// encoded into the downloadable QR image.
	NovusUserID       *string `gorm:"size:100" json:"novus_user_id"`
	NovusCardID       *string `gorm:"size:100" json:"novus_card_id"`
	NovusCredentialID *string `gorm:"size:100" json:"novus_credential_id"`
	QRNumber          *string `gorm:"size:100" json:"qr_number"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a uuid primary key when one was not provided.
func (r *GuestRequest) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsPending reports whether the request is still awaiting review.
func (r *GuestRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}
