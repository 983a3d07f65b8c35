package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPService_IssueAndVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)

	pending, err := env.otp.Issue(ctx, user)
	require.NoError(t, err)
	assert.True(t, pending.OTPDelivered)
	_, err = uuid.Parse(pending.SessionID)
	assert.NoError(t, err)

	msg, ok := env.channel.Last("login_code")
	require.True(t, ok)
	assert.Equal(t, user.Email, msg.Email)
	assert.Len(t, msg.Payload, 6)
	assert.True(t, env.redis.Exists("pending_login:"+pending.SessionID))

	pair, err := env.otp.Verify(ctx, pending.SessionID, msg.Payload)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)

	claims, err := env.tm.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	// The session is consumed by the successful verification.
	_, err = env.otp.Verify(ctx, pending.SessionID, msg.Payload)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestOTPService_CodeIsNotStoredInPlaintext(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)

	pending, err := env.otp.Issue(context.Background(), user)
	require.NoError(t, err)

	raw, err := env.redis.Get("pending_login:" + pending.SessionID)
	require.NoError(t, err)
	assert.NotContains(t, raw, env.loginCode(t))
}

func TestOTPService_WrongCodeLocksAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)

	pending, err := env.otp.Issue(ctx, user)
	require.NoError(t, err)
	code := env.loginCode(t)

	for i := 1; i < testMaxAttempt; i++ {
		_, err = env.otp.Verify(ctx, pending.SessionID, wrongCode(code))
		assert.ErrorIs(t, err, models.ErrInvalidCredentials, "attempt %d", i)
	}

	_, err = env.otp.Verify(ctx, pending.SessionID, wrongCode(code))
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)

	// Locked: even the right code is refused.
	_, err = env.otp.Verify(ctx, pending.SessionID, code)
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
}

func TestOTPService_ExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)

	pending, err := env.otp.Issue(ctx, user)
	require.NoError(t, err)

	env.redis.FastForward(6 * time.Minute)

	_, err = env.otp.Verify(ctx, pending.SessionID, env.loginCode(t))
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestOTPService_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		sessionID string
	}{
		{"well-formed but unknown", uuid.New().String()},
		{"malformed", "not-a-session"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.otp.Verify(context.Background(), tt.sessionID, "123456")
			assert.ErrorIs(t, err, models.ErrSessionExpired)
		})
	}
}

func TestOTPService_DeliveryFailureDiscardsPendingLogin(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)
	env.channel.Err = errors.New("ses throttled")

	_, err := env.otp.Issue(context.Background(), user)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.Empty(t, env.redis.Keys())
}

func TestOTPService_AccountDisabledBetweenSteps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)

	pending, err := env.otp.Issue(ctx, user)
	require.NoError(t, err)

	_, err = env.store.Users().DisableAndRevokeSessions(ctx, user.ID)
	require.NoError(t, err)

	_, err = env.otp.Verify(ctx, pending.SessionID, env.loginCode(t))
	assert.ErrorIs(t, err, models.ErrAccountDisabled)

	active, err := env.refresh.ListActive(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}
