// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role defines what a user is allowed to do with guest requests.
type Role string

const (
	// RoleManager can submit requests and manage their own pending ones.
	RoleManager Role = "MANAGER"
	// RoleSuperuser can review (approve/reject) any pending request.
	RoleSuperuser Role = "SUPERUSER"
)

// User represents an account that interacts with the guest request workflow.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username  string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Role      Role      `gorm:"type:varchar(20);not null;default:'MANAGER'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a uuid primary key when one was not provided.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsManager reports whether the user holds the manager role.
func (u *User) IsManager() bool {
	return u.Role == RoleManager
}

// IsSuperuser reports whether the user holds the superuser role.
func (u *User) IsSuperuser() bool {
	return u.Role == RoleSuperuser
}
