package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
)

// CredentialServiceInterface verifies passwords
type CredentialServiceInterface interface {
	VerifyPassword(ctx context.Context, identifier, password string) (*models.User, error)
}

// OTPServiceInterface defines the one-time code step of login
type OTPServiceInterface interface {
	Issue(ctx context.Context, user *models.User) (*models.PendingLoginResponse, error)
	Verify(ctx context.Context, sessionID, code string) (*models.TokenPair, error)
}

// RefreshTokenServiceInterface defines session refresh and revocation
type RefreshTokenServiceInterface interface {
	Rotate(ctx context.Context, presented string) (*models.TokenPair, error)
	Revoke(ctx context.Context, presented string) error
	RevokeAll(ctx context.Context, userID, reason string) (int64, error)
	ListActive(ctx context.Context, userID string) ([]*models.RefreshToken, error)
}

// MagicLinkServiceInterface defines passwordless login
type MagicLinkServiceInterface interface {
	RequestLink(ctx context.Context, email string) error
	Consume(ctx context.Context, token string) (*models.TokenPair, error)
}

// PasswordResetServiceInterface defines the emailed reset flow
type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, email string) error
	Consume(ctx context.Context, token, newPassword string) error
}

// AccountServiceInterface defines registration and self-service account operations
type AccountServiceInterface interface {
	Register(ctx context.Context, email, username, password string) (*models.User, error)
	Confirm(ctx context.Context, token string) (*models.User, error)
	ResendConfirmation(ctx context.Context, email string) error
	Me(ctx context.Context, userID string) (*models.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// AuthServices groups the services behind AuthHandler
type AuthServices struct {
	Credentials   CredentialServiceInterface
	OTP           OTPServiceInterface
	RefreshTokens RefreshTokenServiceInterface
	MagicLinks    MagicLinkServiceInterface
	PasswordReset PasswordResetServiceInterface
	Accounts      AccountServiceInterface
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	services     AuthServices
	cookieConfig auth.CookieConfig
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(services AuthServices, cookieConfig auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		services:     services,
		cookieConfig: cookieConfig,
		logger:       logger,
	}
}

// Responses whose wording must not depend on whether the account exists.
const (
	registrationAcceptedMessage = "Registration received. If the email is not already registered, you will receive a confirmation email."
	confirmationResentMessage   = "If an unconfirmed account exists for this email, a new confirmation link has been sent."
	magicLinkSentMessage        = "If an account exists for this email, a sign-in link has been sent."
	passwordResetSentMessage    = "If an account exists for this email, a password reset link has been sent."
)

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,alphanum,min=3,max=32"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest represents the request body for the password step of login
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required"`
}

// VerifyOTPRequest represents the request body for the code step of login
type VerifyOTPRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid4"`
	Code      string `json:"code" validate:"required,numeric,min=6,max=8"`
}

// RefreshTokenRequest represents the request body for refresh and logout.
// The token may come from the refresh_token cookie instead.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// EmailRequest is the body of every "send me a link" endpoint
type EmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// TokenRequest carries a one-time link token
type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// PasswordResetConsumeRequest represents the request body for completing a reset
type PasswordResetConsumeRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePasswordRequest represents the request body for changing password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// Response DTOs

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// UserResponse is the public view of an account
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionResponse describes one active refresh-token chain
type SessionResponse struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toUserResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		Status:    user.Status,
		CreatedAt: user.CreatedAt,
	}
}

// writeTokenPair sets the refresh cookie and writes the pair.
func (h *AuthHandler) writeTokenPair(w http.ResponseWriter, pair *models.TokenPair) {
	auth.SetRefreshTokenCookie(w, pair.RefreshToken, pair.RefreshExpiresAt, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, pair)
}

// presentedRefreshToken reads the refresh token from the body, falling
// back to the cookie.
func presentedRefreshToken(r *http.Request, req RefreshTokenRequest) string {
	if token := strings.TrimSpace(req.RefreshToken); token != "" {
		return token
	}
	token, err := auth.GetRefreshTokenCookie(r)
	if err != nil {
		return ""
	}
	return token
}

// decodeOptional decodes a body that may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// Register handles POST /auth/register. A taken email or username gets
// the same 202 as a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	_, err := h.services.Accounts.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil && !errors.Is(err, models.ErrConflict) {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: registrationAcceptedMessage})
}

// Confirm handles GET /auth/confirm?token=
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "token is required")
		return
	}

	if _, err := h.services.Accounts.Confirm(r.Context(), token); err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Account confirmed. Please log in."})
}

// ResendConfirmation handles POST /auth/confirm/resend
func (h *AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.services.Accounts.ResendConfirmation(r.Context(), req.Email); err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: confirmationResentMessage})
}

// Login handles POST /auth/login: the password step. On success a login
// code is sent and the pending session id returned.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.services.Credentials.VerifyPassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pending, err := h.services.OTP.Issue(r.Context(), user)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, pending)
}

// VerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := h.services.OTP.Verify(r.Context(), req.SessionID, req.Code)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	h.writeTokenPair(w, pair)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	token := presentedRefreshToken(r, req)
	if token == "" {
		pkghttp.WriteBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := h.services.RefreshTokens.Rotate(r.Context(), token)
	if err != nil {
		if !errors.Is(err, models.ErrStorageUnavailable) {
			auth.ClearRefreshTokenCookie(w, h.cookieConfig)
		}
		WriteServiceError(w, err)
		return
	}

	h.writeTokenPair(w, pair)
}

// Logout handles POST /auth/logout. Unknown tokens are accepted.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	if err := h.services.RefreshTokens.Revoke(r.Context(), presentedRefreshToken(r, req)); err != nil {
		WriteServiceError(w, err)
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// RequestMagicLink handles POST /auth/magic-link
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.services.MagicLinks.RequestLink(r.Context(), req.Email); err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: magicLinkSentMessage})
}

// ConsumeMagicLink handles POST /auth/magic-link/consume
func (h *AuthHandler) ConsumeMagicLink(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := h.services.MagicLinks.Consume(r.Context(), req.Token)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	h.writeTokenPair(w, pair)
}

// RequestPasswordReset handles POST /auth/password-reset
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.services.PasswordReset.RequestReset(r.Context(), req.Email); err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: passwordResetSentMessage})
}

// ConsumePasswordReset handles POST /auth/password-reset/consume
func (h *AuthHandler) ConsumePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConsumeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.services.PasswordReset.Consume(r.Context(), req.Token, req.NewPassword); err != nil {
		WriteServiceError(w, err)
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.services.Accounts.Me(r.Context(), claims.UserID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// Sessions handles GET /auth/sessions
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	tokens, err := h.services.RefreshTokens.ListActive(r.Context(), claims.UserID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	sessions := make([]SessionResponse, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionResponse{
			ID:        t.ID,
			FamilyID:  t.FamilyID,
			IssuedAt:  t.IssuedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, sessions)
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if _, err := h.services.RefreshTokens.RevokeAll(r.Context(), claims.UserID, models.RevokeReasonLogoutAll); err != nil {
		WriteServiceError(w, err)
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /auth/change-password. All sessions,
// including the current one, are revoked.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.services.Accounts.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		WriteServiceError(w, err)
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}
