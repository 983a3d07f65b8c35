package models

import "time"

// PendingLogin is the state between a successful password check and OTP
// verification. It never grants access by itself.
type PendingLogin struct {
	SessionID string    `json:"-"`
	UserID    string    `json:"user_id"`
	CodeHash  string    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
	Locked    bool      `json:"locked"`
}

// PendingLoginResponse is returned by the password step of login.
type PendingLoginResponse struct {
	SessionID    string    `json:"session_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	OTPDelivered bool      `json:"otp_delivered"`
}
