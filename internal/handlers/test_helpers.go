package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   models.RoleUser,
		Type:   models.TokenTypeAccess,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithAdminContext adds admin user claims to request context
func WithAdminContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   models.RoleAdmin,
		Type:   models.TokenTypeAccess,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithChiRouteContext sets chi URL parameters on a request built outside a router
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockCredentialService implements CredentialServiceInterface for testing
type MockCredentialService struct {
	VerifyPasswordFunc func(ctx context.Context, identifier, password string) (*models.User, error)
}

func (m *MockCredentialService) VerifyPassword(ctx context.Context, identifier, password string) (*models.User, error) {
	if m.VerifyPasswordFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.VerifyPasswordFunc(ctx, identifier, password)
}

// MockOTPService implements OTPServiceInterface for testing
type MockOTPService struct {
	IssueFunc  func(ctx context.Context, user *models.User) (*models.PendingLoginResponse, error)
	VerifyFunc func(ctx context.Context, sessionID, code string) (*models.TokenPair, error)
}

func (m *MockOTPService) Issue(ctx context.Context, user *models.User) (*models.PendingLoginResponse, error) {
	if m.IssueFunc == nil {
		return nil, models.ErrStorageUnavailable
	}
	return m.IssueFunc(ctx, user)
}

func (m *MockOTPService) Verify(ctx context.Context, sessionID, code string) (*models.TokenPair, error) {
	if m.VerifyFunc == nil {
		return nil, models.ErrSessionExpired
	}
	return m.VerifyFunc(ctx, sessionID, code)
}

// MockRefreshTokenService implements RefreshTokenServiceInterface for testing
type MockRefreshTokenService struct {
	RotateFunc     func(ctx context.Context, presented string) (*models.TokenPair, error)
	RevokeFunc     func(ctx context.Context, presented string) error
	RevokeAllFunc  func(ctx context.Context, userID, reason string) (int64, error)
	ListActiveFunc func(ctx context.Context, userID string) ([]*models.RefreshToken, error)
}

func (m *MockRefreshTokenService) Rotate(ctx context.Context, presented string) (*models.TokenPair, error) {
	if m.RotateFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.RotateFunc(ctx, presented)
}

func (m *MockRefreshTokenService) Revoke(ctx context.Context, presented string) error {
	if m.RevokeFunc == nil {
		return nil
	}
	return m.RevokeFunc(ctx, presented)
}

func (m *MockRefreshTokenService) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	if m.RevokeAllFunc == nil {
		return 0, nil
	}
	return m.RevokeAllFunc(ctx, userID, reason)
}

func (m *MockRefreshTokenService) ListActive(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	if m.ListActiveFunc == nil {
		return []*models.RefreshToken{}, nil
	}
	return m.ListActiveFunc(ctx, userID)
}

// MockMagicLinkService implements MagicLinkServiceInterface for testing
type MockMagicLinkService struct {
	RequestLinkFunc func(ctx context.Context, email string) error
	ConsumeFunc     func(ctx context.Context, token string) (*models.TokenPair, error)
}

func (m *MockMagicLinkService) RequestLink(ctx context.Context, email string) error {
	if m.RequestLinkFunc == nil {
		return nil
	}
	return m.RequestLinkFunc(ctx, email)
}

func (m *MockMagicLinkService) Consume(ctx context.Context, token string) (*models.TokenPair, error) {
	if m.ConsumeFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.ConsumeFunc(ctx, token)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestResetFunc func(ctx context.Context, email string) error
	ConsumeFunc      func(ctx context.Context, token, newPassword string) error
}

func (m *MockPasswordResetService) RequestReset(ctx context.Context, email string) error {
	if m.RequestResetFunc == nil {
		return nil
	}
	return m.RequestResetFunc(ctx, email)
}

func (m *MockPasswordResetService) Consume(ctx context.Context, token, newPassword string) error {
	if m.ConsumeFunc == nil {
		return models.ErrInvalidToken
	}
	return m.ConsumeFunc(ctx, token, newPassword)
}

// MockAccountService implements AccountServiceInterface and
// AdminAccountServiceInterface for testing
type MockAccountService struct {
	RegisterFunc           func(ctx context.Context, email, username, password string) (*models.User, error)
	ConfirmFunc            func(ctx context.Context, token string) (*models.User, error)
	ResendConfirmationFunc func(ctx context.Context, email string) error
	MeFunc                 func(ctx context.Context, userID string) (*models.User, error)
	ChangePasswordFunc     func(ctx context.Context, userID, currentPassword, newPassword string) error
	SetRoleFunc            func(ctx context.Context, actorID, userID, role string) (*models.User, error)
	DisableFunc            func(ctx context.Context, actorID, userID string) error
}

func (m *MockAccountService) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, username, password)
}

func (m *MockAccountService) Confirm(ctx context.Context, token string) (*models.User, error) {
	if m.ConfirmFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.ConfirmFunc(ctx, token)
}

func (m *MockAccountService) ResendConfirmation(ctx context.Context, email string) error {
	if m.ResendConfirmationFunc == nil {
		return nil
	}
	return m.ResendConfirmationFunc(ctx, email)
}

func (m *MockAccountService) Me(ctx context.Context, userID string) (*models.User, error) {
	if m.MeFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.MeFunc(ctx, userID)
}

func (m *MockAccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword)
}

func (m *MockAccountService) SetRole(ctx context.Context, actorID, userID, role string) (*models.User, error) {
	if m.SetRoleFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SetRoleFunc(ctx, actorID, userID, role)
}

func (m *MockAccountService) Disable(ctx context.Context, actorID, userID string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, actorID, userID)
}

// MockSubscriptionService implements SubscriptionServiceInterface for testing
type MockSubscriptionService struct {
	SubscribeArtistFunc   func(ctx context.Context, userID, artistID string) error
	UnsubscribeArtistFunc func(ctx context.Context, userID, artistID string) error
	SubscribeGenreFunc    func(ctx context.Context, userID, genre string) error
	UnsubscribeGenreFunc  func(ctx context.Context, userID, genre string) error
	ListFunc              func(ctx context.Context, userID string) (*models.Subscriptions, error)
}

func (m *MockSubscriptionService) SubscribeArtist(ctx context.Context, userID, artistID string) error {
	if m.SubscribeArtistFunc == nil {
		return nil
	}
	return m.SubscribeArtistFunc(ctx, userID, artistID)
}

func (m *MockSubscriptionService) UnsubscribeArtist(ctx context.Context, userID, artistID string) error {
	if m.UnsubscribeArtistFunc == nil {
		return nil
	}
	return m.UnsubscribeArtistFunc(ctx, userID, artistID)
}

func (m *MockSubscriptionService) SubscribeGenre(ctx context.Context, userID, genre string) error {
	if m.SubscribeGenreFunc == nil {
		return nil
	}
	return m.SubscribeGenreFunc(ctx, userID, genre)
}

func (m *MockSubscriptionService) UnsubscribeGenre(ctx context.Context, userID, genre string) error {
	if m.UnsubscribeGenreFunc == nil {
		return nil
	}
	return m.UnsubscribeGenreFunc(ctx, userID, genre)
}

func (m *MockSubscriptionService) List(ctx context.Context, userID string) (*models.Subscriptions, error) {
	if m.ListFunc == nil {
		return &models.Subscriptions{Artists: []models.ArtistSubscription{}, Genres: []models.GenreSubscription{}}, nil
	}
	return m.ListFunc(ctx, userID)
}

// MockNotificationService implements NotificationServiceInterface and
// PublisherInterface for testing
type MockNotificationService struct {
	ListFunc                       func(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	UnreadCountFunc                func(ctx context.Context, userID string) (int, error)
	MarkReadFunc                   func(ctx context.Context, userID, id string) error
	MarkAllReadFunc                func(ctx context.Context, userID string) (int64, error)
	PublishToArtistSubscribersFunc func(ctx context.Context, artistID, title, body string) (int64, error)
	PublishToGenreSubscribersFunc  func(ctx context.Context, genre, title, body string) (int64, error)
}

func (m *MockNotificationService) List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	if m.ListFunc == nil {
		return nil, nil
	}
	return m.ListFunc(ctx, userID, limit, offset)
}

func (m *MockNotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	if m.UnreadCountFunc == nil {
		return 0, nil
	}
	return m.UnreadCountFunc(ctx, userID)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if m.MarkReadFunc == nil {
		return nil
	}
	return m.MarkReadFunc(ctx, userID, id)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if m.MarkAllReadFunc == nil {
		return 0, nil
	}
	return m.MarkAllReadFunc(ctx, userID)
}

func (m *MockNotificationService) PublishToArtistSubscribers(ctx context.Context, artistID, title, body string) (int64, error) {
	if m.PublishToArtistSubscribersFunc == nil {
		return 0, nil
	}
	return m.PublishToArtistSubscribersFunc(ctx, artistID, title, body)
}

func (m *MockNotificationService) PublishToGenreSubscribers(ctx context.Context, genre, title, body string) (int64, error) {
	if m.PublishToGenreSubscribersFunc == nil {
		return 0, nil
	}
	return m.PublishToGenreSubscribersFunc(ctx, genre, title, body)
}
