package models

import (
	"time"
)

// Account roles
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account statuses
const (
	StatusPendingConfirmation = "PENDING_CONFIRMATION"
	StatusActive              = "ACTIVE"
	StatusDisabled            = "DISABLED"
)

// User is a platform account. Accounts are never deleted, only disabled.
type User struct {
	ID                string
	Email             string
	Username          string
	PasswordHash      string
	Role              string
	Status            string
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// StatusError maps a non-active status to its error; ACTIVE yields nil.
func StatusError(status string) error {
	switch status {
	case StatusActive:
		return nil
	case StatusPendingConfirmation:
		return ErrAccountUnconfirmed
	default:
		return ErrAccountDisabled
	}
}
