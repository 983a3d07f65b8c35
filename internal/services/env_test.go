package services

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/BradenHooton/cadence/internal/repositories"
	pkgauth "github.com/BradenHooton/cadence/pkg/auth"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testJWTSecret  = "test-access-secret-0123456789abcdef"
	testLinkSecret = "test-link-secret-fedcba9876543210"
	testBaseURL    = "https://cadence.test"
	testPassword   = "SecureP@ss123"
	testTimeout    = time.Second
	testMaxAttempt = 3
)

// testEnv wires every auth service against in-memory storage, a miniredis
// pending-login store and a recording channel.
type testEnv struct {
	store   *memoryStore
	channel *recordingChannel
	redis   *miniredis.Miniredis
	tm      *auth.TokenManager
	hasher  *pkgauth.PasswordHasher
	timing  *auth.TimingDelay
	audit   *pkglogger.AuditLogger
	logger  *slog.Logger

	credentials *CredentialService
	refresh     *RefreshTokenService
	otp         *OTPService
	magic       *MagicLinkService
	reset       *PasswordResetService
	accounts    *AccountService
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hasher, err := pkgauth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	logger := newTestLogger()
	env := &testEnv{
		store:   newMemoryStore(),
		channel: &recordingChannel{},
		redis:   mr,
		tm:      auth.NewTokenManager(testJWTSecret, testLinkSecret, 15*time.Minute),
		hasher:  hasher,
		timing:  auth.NewTimingDelay(auth.TimingConfig{}),
		audit:   pkglogger.NewAuditLogger(logger),
		logger:  logger,
	}

	users := env.store.Users()
	links := env.store.Links()

	env.credentials = NewCredentialService(users, hasher, env.timing, env.audit, logger, testTimeout)
	env.refresh = NewRefreshTokenService(env.store.RefreshTokens(), users, env.tm, env.audit, logger, 24*time.Hour, testTimeout)
	env.otp = NewOTPService(
		repositories.NewPendingLoginStore(client),
		users,
		env.refresh,
		env.channel,
		auth.NewOTPGenerator(6),
		env.audit,
		logger,
		OTPConfig{Expiry: 5 * time.Minute, MaxAttempts: testMaxAttempt, StorageTimeout: testTimeout},
	)
	env.magic = NewMagicLinkService(users, links, env.refresh, env.channel, env.tm, env.timing, env.audit, logger,
		testBaseURL, 15*time.Minute, testTimeout)
	env.reset = NewPasswordResetService(users, links, hasher, env.channel, env.tm, env.timing, env.audit, logger,
		testBaseURL, 30*time.Minute, testTimeout)
	env.accounts = NewAccountService(users, links, hasher, env.channel, env.tm, env.timing, env.audit, logger, AccountConfig{
		BaseURL:            testBaseURL,
		ConfirmationExpiry: 24 * time.Hour,
		StorageTimeout:     testTimeout,
	})

	return env
}

// seedUser stores an account with testPassword and the given status.
func (e *testEnv) seedUser(t *testing.T, email, username, status string) *models.User {
	t.Helper()

	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)

	user, err := e.store.Users().Create(context.Background(), &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       status,
	})
	require.NoError(t, err)
	return user
}

// tokenFromLink extracts the token query parameter of an emailed link.
func tokenFromLink(t *testing.T, link string) string {
	t.Helper()

	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

// loginCode returns the most recently delivered login code.
func (e *testEnv) loginCode(t *testing.T) string {
	t.Helper()

	msg, ok := e.channel.Last("login_code")
	require.True(t, ok, "no login code delivered")
	return msg.Payload
}

// wrongCode returns a code of the same length that differs from code.
func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
