package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim
const (
	TokenTypeAccess = "access"
	TokenTypeLink   = "link"
)

// TokenClaims are the claims of an access token.
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// LinkClaims are the claims of a signed one-time link token
// (magic link, password reset, account confirmation).
type LinkClaims struct {
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenPair is returned by every flow that establishes a session.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
