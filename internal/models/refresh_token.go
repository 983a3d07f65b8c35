package models

import "time"

// Revocation reasons recorded on refresh tokens
const (
	RevokeReasonRotated        = "rotated"
	RevokeReasonLogout         = "logout"
	RevokeReasonLogoutAll      = "logout_all"
	RevokeReasonReplay         = "replay"
	RevokeReasonPasswordReset  = "password_reset"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonDisabled       = "account_disabled"
)

// RefreshTokenState is the lifecycle state of a single refresh token.
type RefreshTokenState string

const (
	RefreshTokenIssued  RefreshTokenState = "issued"
	RefreshTokenRotated RefreshTokenState = "rotated"
	RefreshTokenRevoked RefreshTokenState = "revoked"
	RefreshTokenExpired RefreshTokenState = "expired"
)

// RefreshToken is a persisted refresh token. Only the SHA-256 of the opaque
// value is stored, in TokenHash.
type RefreshToken struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	TokenHash    string     `json:"-"`
	FamilyID     string     `json:"family_id"`
	ParentID     *string    `json:"parent_id,omitempty"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	IsRevoked    bool       `json:"is_revoked"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason *string    `json:"revoke_reason,omitempty"`
}

// State derives the lifecycle state at time now.
func (t *RefreshToken) State(now time.Time) RefreshTokenState {
	if t.IsRevoked {
		if t.RevokeReason != nil && *t.RevokeReason == RevokeReasonRotated {
			return RefreshTokenRotated
		}
		return RefreshTokenRevoked
	}
	if !now.Before(t.ExpiresAt) {
		return RefreshTokenExpired
	}
	return RefreshTokenIssued
}
