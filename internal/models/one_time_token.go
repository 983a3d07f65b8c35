package models

import (
	"time"
)

// One-time token purposes
const (
	PurposeMagicLink           = "magic_link"
	PurposePasswordReset       = "password_reset"
	PurposeAccountConfirmation = "account_confirmation"
)

// OneTimeToken is the server-side record of a signed single-use link token.
// ID equals the token's jti claim.
type OneTimeToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Purpose    string     `json:"purpose"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired checks if the token has expired
func (t *OneTimeToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsConsumed checks if the token has already been used
func (t *OneTimeToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}
