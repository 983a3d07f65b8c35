package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/google/uuid"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc                         func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc                      func(ctx context.Context, email string) (*models.User, error)
	GetByUsernameFunc                   func(ctx context.Context, username string) (*models.User, error)
	CreateFunc                          func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateRoleFunc                      func(ctx context.Context, id, role string) (*models.User, error)
	ActivateWithTokenFunc               func(ctx context.Context, tokenID string) (*models.User, error)
	ResetPasswordWithTokenFunc          func(ctx context.Context, tokenID, passwordHash string) (string, error)
	UpdatePasswordAndRevokeSessionsFunc func(ctx context.Context, userID, passwordHash, reason string) error
	DisableAndRevokeSessionsFunc        func(ctx context.Context, userID string) (int64, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateRole(ctx context.Context, id, role string) (*models.User, error) {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, id, role)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) ActivateWithToken(ctx context.Context, tokenID string) (*models.User, error) {
	if m.ActivateWithTokenFunc != nil {
		return m.ActivateWithTokenFunc(ctx, tokenID)
	}
	return nil, models.ErrInvalidToken
}

func (m *MockUserRepository) ResetPasswordWithToken(ctx context.Context, tokenID, passwordHash string) (string, error) {
	if m.ResetPasswordWithTokenFunc != nil {
		return m.ResetPasswordWithTokenFunc(ctx, tokenID, passwordHash)
	}
	return "", models.ErrInvalidToken
}

func (m *MockUserRepository) UpdatePasswordAndRevokeSessions(ctx context.Context, userID, passwordHash, reason string) error {
	if m.UpdatePasswordAndRevokeSessionsFunc != nil {
		return m.UpdatePasswordAndRevokeSessionsFunc(ctx, userID, passwordHash, reason)
	}
	return nil
}

func (m *MockUserRepository) DisableAndRevokeSessions(ctx context.Context, userID string) (int64, error) {
	if m.DisableAndRevokeSessionsFunc != nil {
		return m.DisableAndRevokeSessionsFunc(ctx, userID)
	}
	return 0, nil
}

// MockOneTimeTokenRepository implements OneTimeTokenRepository for testing
type MockOneTimeTokenRepository struct {
	CreateFunc  func(ctx context.Context, token *models.OneTimeToken) error
	ConsumeFunc func(ctx context.Context, id, purpose string) (string, error)
}

func (m *MockOneTimeTokenRepository) Create(ctx context.Context, token *models.OneTimeToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *MockOneTimeTokenRepository) Consume(ctx context.Context, id, purpose string) (string, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id, purpose)
	}
	return "", models.ErrNotFound
}

// MockSubscriptionRepository implements SubscriptionRepository for testing
type MockSubscriptionRepository struct {
	AddArtistFunc    func(ctx context.Context, userID, artistID string) error
	RemoveArtistFunc func(ctx context.Context, userID, artistID string) error
	AddGenreFunc     func(ctx context.Context, userID, genre string) error
	RemoveGenreFunc  func(ctx context.Context, userID, genre string) error
	ListForUserFunc  func(ctx context.Context, userID string) (*models.Subscriptions, error)
}

func (m *MockSubscriptionRepository) AddArtist(ctx context.Context, userID, artistID string) error {
	if m.AddArtistFunc != nil {
		return m.AddArtistFunc(ctx, userID, artistID)
	}
	return nil
}

func (m *MockSubscriptionRepository) RemoveArtist(ctx context.Context, userID, artistID string) error {
	if m.RemoveArtistFunc != nil {
		return m.RemoveArtistFunc(ctx, userID, artistID)
	}
	return nil
}

func (m *MockSubscriptionRepository) AddGenre(ctx context.Context, userID, genre string) error {
	if m.AddGenreFunc != nil {
		return m.AddGenreFunc(ctx, userID, genre)
	}
	return nil
}

func (m *MockSubscriptionRepository) RemoveGenre(ctx context.Context, userID, genre string) error {
	if m.RemoveGenreFunc != nil {
		return m.RemoveGenreFunc(ctx, userID, genre)
	}
	return nil
}

func (m *MockSubscriptionRepository) ListForUser(ctx context.Context, userID string) (*models.Subscriptions, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID)
	}
	return &models.Subscriptions{}, nil
}

// MockNotificationRepository implements NotificationRepository for testing
type MockNotificationRepository struct {
	ListForUserFunc               func(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	CountUnreadFunc               func(ctx context.Context, userID string) (int, error)
	MarkReadFunc                  func(ctx context.Context, userID, id string) error
	MarkAllReadFunc               func(ctx context.Context, userID string) (int64, error)
	FanOutToArtistSubscribersFunc func(ctx context.Context, artistID, title, body string) (int64, error)
	FanOutToGenreSubscribersFunc  func(ctx context.Context, genre, title, body string) (int64, error)
}

func (m *MockNotificationRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID, limit, offset)
	}
	return []*models.Notification{}, nil
}

func (m *MockNotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if m.CountUnreadFunc != nil {
		return m.CountUnreadFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, userID, id)
	}
	return nil
}

func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if m.MarkAllReadFunc != nil {
		return m.MarkAllReadFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockNotificationRepository) FanOutToArtistSubscribers(ctx context.Context, artistID, title, body string) (int64, error) {
	if m.FanOutToArtistSubscribersFunc != nil {
		return m.FanOutToArtistSubscribersFunc(ctx, artistID, title, body)
	}
	return 0, nil
}

func (m *MockNotificationRepository) FanOutToGenreSubscribers(ctx context.Context, genre, title, body string) (int64, error) {
	if m.FanOutToGenreSubscribersFunc != nil {
		return m.FanOutToGenreSubscribersFunc(ctx, genre, title, body)
	}
	return 0, nil
}

// sentMessage is one delivery captured by recordingChannel
type sentMessage struct {
	Kind      string
	Email     string
	Payload   string
	ExpiresAt time.Time
}

// recordingChannel implements NotificationChannel by remembering every
// message. Err, when set, fails every delivery.
type recordingChannel struct {
	mu   sync.Mutex
	sent []sentMessage
	Err  error
}

func (c *recordingChannel) record(kind, email, payload string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.sent = append(c.sent, sentMessage{Kind: kind, Email: email, Payload: payload, ExpiresAt: expiresAt})
	return nil
}

func (c *recordingChannel) SendConfirmation(_ context.Context, email, link string, expiresAt time.Time) error {
	return c.record("confirmation", email, link, expiresAt)
}

func (c *recordingChannel) SendLoginCode(_ context.Context, email, code string, expiresAt time.Time) error {
	return c.record("login_code", email, code, expiresAt)
}

func (c *recordingChannel) SendMagicLink(_ context.Context, email, link string, expiresAt time.Time) error {
	return c.record("magic_link", email, link, expiresAt)
}

func (c *recordingChannel) SendPasswordReset(_ context.Context, email, link string, expiresAt time.Time) error {
	return c.record("password_reset", email, link, expiresAt)
}

// Last returns the most recent message of kind.
func (c *recordingChannel) Last(kind string) (sentMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Kind == kind {
			return c.sent[i], true
		}
	}
	return sentMessage{}, false
}

// Count returns how many messages were delivered.
func (c *recordingChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// memoryStore is an in-memory stand-in for the Postgres repositories. A
// single mutex makes every method behave like its transactional
// counterpart. Views: memoryUsers, memoryLinks, memoryRefreshTokens.
type memoryStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	links   map[string]*models.OneTimeToken
	refresh map[string]*models.RefreshToken
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:   make(map[string]*models.User),
		links:   make(map[string]*models.OneTimeToken),
		refresh: make(map[string]*models.RefreshToken),
	}
}

func (s *memoryStore) Users() *memoryUsers                 { return &memoryUsers{s} }
func (s *memoryStore) Links() *memoryLinks                 { return &memoryLinks{s} }
func (s *memoryStore) RefreshTokens() *memoryRefreshTokens { return &memoryRefreshTokens{s} }

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyRefreshToken(t *models.RefreshToken) *models.RefreshToken {
	c := *t
	return &c
}

func (s *memoryStore) consumeLocked(id, purpose string) (string, error) {
	token, ok := s.links[id]
	if !ok || token.Purpose != purpose {
		return "", models.ErrInvalidToken
	}
	if token.ConsumedAt != nil {
		return "", models.ErrTokenAlreadyUsed
	}
	if !time.Now().Before(token.ExpiresAt) {
		return "", models.ErrTokenExpired
	}
	now := time.Now()
	token.ConsumedAt = &now
	return token.UserID, nil
}

func (s *memoryStore) revokeAllLocked(userID, reason string) int64 {
	var n int64
	now := time.Now()
	for _, t := range s.refresh {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			t.RevokedAt = &now
			r := reason
			t.RevokeReason = &r
			n++
		}
	}
	return n
}

func (s *memoryStore) findRefreshLocked(hash string) *models.RefreshToken {
	for _, t := range s.refresh {
		if t.TokenHash == hash {
			return t
		}
	}
	return nil
}

func (s *memoryStore) insertRefreshLocked(token *models.RefreshToken) (*models.RefreshToken, error) {
	if s.findRefreshLocked(token.TokenHash) != nil {
		return nil, models.ErrConflict
	}
	stored := copyRefreshToken(token)
	stored.ID = uuid.New().String()
	if stored.FamilyID == "" {
		stored.FamilyID = uuid.New().String()
	}
	stored.IssuedAt = time.Now()
	s.refresh[stored.ID] = stored
	return copyRefreshToken(stored), nil
}

type memoryUsers struct{ s *memoryStore }

func (r *memoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, models.ErrNotFound
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memoryUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Username, username) {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memoryUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) || strings.EqualFold(u.Username, user.Username) {
			return nil, models.ErrConflict
		}
	}

	stored := copyUser(user)
	stored.ID = uuid.New().String()
	if stored.Role == "" {
		stored.Role = models.RoleUser
	}
	if stored.Status == "" {
		stored.Status = models.StatusPendingConfirmation
	}
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.s.users[stored.ID] = stored
	return copyUser(stored), nil
}

func (r *memoryUsers) UpdateRole(_ context.Context, id, role string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	u.Role = role
	return copyUser(u), nil
}

func (r *memoryUsers) ActivateWithToken(_ context.Context, tokenID string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.links[tokenID]
	if ok {
		if u, found := r.s.users[token.UserID]; found && u.Status == models.StatusDisabled && token.ConsumedAt == nil {
			return nil, models.ErrAccountDisabled
		}
	}

	userID, err := r.s.consumeLocked(tokenID, models.PurposeAccountConfirmation)
	if err != nil {
		return nil, err
	}
	u := r.s.users[userID]
	u.Status = models.StatusActive
	return copyUser(u), nil
}

func (r *memoryUsers) ResetPasswordWithToken(_ context.Context, tokenID, passwordHash string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	userID, err := r.s.consumeLocked(tokenID, models.PurposePasswordReset)
	if err != nil {
		return "", err
	}
	u, ok := r.s.users[userID]
	if !ok {
		return "", models.ErrNotFound
	}
	now := time.Now()
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &now
	r.s.revokeAllLocked(userID, models.RevokeReasonPasswordReset)
	return userID, nil
}

func (r *memoryUsers) UpdatePasswordAndRevokeSessions(_ context.Context, userID, passwordHash, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	now := time.Now()
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &now
	r.s.revokeAllLocked(userID, reason)
	return nil
}

func (r *memoryUsers) DisableAndRevokeSessions(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return 0, models.ErrNotFound
	}
	u.Status = models.StatusDisabled
	return r.s.revokeAllLocked(userID, models.RevokeReasonDisabled), nil
}

type memoryLinks struct{ s *memoryStore }

func (r *memoryLinks) Create(_ context.Context, token *models.OneTimeToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.links[token.ID]; exists {
		return models.ErrConflict
	}
	stored := *token
	stored.CreatedAt = time.Now()
	r.s.links[token.ID] = &stored
	return nil
}

func (r *memoryLinks) Consume(_ context.Context, id, purpose string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.consumeLocked(id, purpose)
}

type memoryRefreshTokens struct{ s *memoryStore }

func (r *memoryRefreshTokens) Create(_ context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertRefreshLocked(token)
}

func (r *memoryRefreshTokens) GetByHash(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t := r.s.findRefreshLocked(tokenHash); t != nil {
		return copyRefreshToken(t), nil
	}
	return nil, models.ErrNotFound
}

func (r *memoryRefreshTokens) Rotate(_ context.Context, tokenHash, successorHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current := r.s.findRefreshLocked(tokenHash)
	if current == nil || current.IsRevoked || !time.Now().Before(current.ExpiresAt) {
		return nil, models.ErrNotFound
	}

	status := models.StatusDisabled
	if u, ok := r.s.users[current.UserID]; ok {
		status = u.Status
	}

	now := time.Now()
	reason := models.RevokeReasonRotated
	if status != models.StatusActive {
		reason = models.RevokeReasonDisabled
	}
	current.IsRevoked = true
	current.RevokedAt = &now
	current.RevokeReason = &reason

	if err := models.StatusError(status); err != nil {
		return nil, err
	}

	parentID := current.ID
	return r.s.insertRefreshLocked(&models.RefreshToken{
		UserID:    current.UserID,
		TokenHash: successorHash,
		FamilyID:  current.FamilyID,
		ParentID:  &parentID,
		ExpiresAt: expiresAt,
	})
}

func (r *memoryRefreshTokens) Revoke(_ context.Context, tokenHash, reason string) (*models.RefreshToken, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t := r.s.findRefreshLocked(tokenHash)
	if t == nil || t.IsRevoked {
		return nil, false, nil
	}
	now := time.Now()
	t.IsRevoked = true
	t.RevokedAt = &now
	t.RevokeReason = &reason
	return copyRefreshToken(t), true, nil
}

func (r *memoryRefreshTokens) RevokeByID(_ context.Context, id, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.refresh[id]
	if !ok {
		return models.ErrNotFound
	}
	if !t.IsRevoked {
		now := time.Now()
		t.IsRevoked = true
		t.RevokedAt = &now
		t.RevokeReason = &reason
	}
	return nil
}

func (r *memoryRefreshTokens) RevokeAllForUser(_ context.Context, userID, reason string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.revokeAllLocked(userID, reason), nil
}

func (r *memoryRefreshTokens) ListActive(_ context.Context, userID string) ([]*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	var active []*models.RefreshToken
	for _, t := range r.s.refresh {
		if t.UserID == userID && t.State(now) == models.RefreshTokenIssued {
			active = append(active, copyRefreshToken(t))
		}
	}
	return active, nil
}
