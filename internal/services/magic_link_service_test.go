package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagicLinkService_RequestAndConsume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)

	require.NoError(t, env.magic.RequestLink(ctx, "  LISTENER@example.com"))

	msg, ok := env.channel.Last("magic_link")
	require.True(t, ok)
	assert.Equal(t, user.Email, msg.Email)
	assert.True(t, strings.HasPrefix(msg.Payload, testBaseURL+"/auth/magic-link?token="))

	token := tokenFromLink(t, msg.Payload)
	pair, err := env.magic.Consume(ctx, token)
	require.NoError(t, err)

	claims, err := env.tm.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	_, err = env.magic.Consume(ctx, token)
	assert.ErrorIs(t, err, models.ErrTokenAlreadyUsed)
}

func TestMagicLinkService_RequestSendsNothingForIneligibleAddresses(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "pending@example.com", "pending", models.StatusPendingConfirmation)
	env.seedUser(t, "disabled@example.com", "disabled", models.StatusDisabled)

	for _, email := range []string{"nobody@example.com", "pending@example.com", "disabled@example.com"} {
		assert.NoError(t, env.magic.RequestLink(context.Background(), email), email)
	}
	assert.Equal(t, 0, env.channel.Count())
}

func TestMagicLinkService_DeliveryFailureIsHidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "listener@example.com", "listener", models.StatusActive)
	env.channel.Err = errors.New("ses unavailable")

	assert.NoError(t, env.magic.RequestLink(context.Background(), "listener@example.com"))
}

func TestMagicLinkService_ConsumeRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)

	resetToken, _, err := env.reset.links.issue(ctx, models.PurposePasswordReset, user.ID, time.Hour)
	require.NoError(t, err)

	unstored, _, _, err := env.tm.GenerateLinkToken(models.PurposeMagicLink, user.ID, time.Hour)
	require.NoError(t, err)

	expiredToken, _, err := env.magic.links.issue(ctx, models.PurposeMagicLink, user.ID, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not-a-jwt", models.ErrInvalidToken},
		{"tampered", tamperSignature(unstored), models.ErrInvalidToken},
		{"wrong purpose", resetToken, models.ErrInvalidToken},
		{"signed but never stored", unstored, models.ErrInvalidToken},
		{"expired", expiredToken, models.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.magic.Consume(ctx, tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMagicLinkService_ConsumeForDisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "listener@example.com", "listener", models.StatusActive)

	require.NoError(t, env.magic.RequestLink(ctx, user.Email))
	msg, ok := env.channel.Last("magic_link")
	require.True(t, ok)

	_, err := env.store.Users().DisableAndRevokeSessions(ctx, user.ID)
	require.NoError(t, err)

	_, err = env.magic.Consume(ctx, tokenFromLink(t, msg.Payload))
	assert.ErrorIs(t, err, models.ErrAccountDisabled)
}

// tamperSignature changes the first character of a JWT's signature.
func tamperSignature(token string) string {
	i := strings.LastIndex(token, ".") + 1
	replacement := "A"
	if token[i] == 'A' {
		replacement = "B"
	}
	return token[:i] + replacement + token[i+1:]
}

// A storage fault while recording the link must look exactly like a
// request for an unknown address.
func TestLinkRequests_IssueFailureIsHidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "listener@example.com", "listener", models.StatusActive)
	env.seedUser(t, "pending@example.com", "pending", models.StatusPendingConfirmation)

	broken := &MockOneTimeTokenRepository{
		CreateFunc: func(ctx context.Context, token *models.OneTimeToken) error {
			return models.ErrStorageUnavailable
		},
	}
	env.magic.links.tokens = broken
	env.reset.links.tokens = broken
	env.accounts.links.tokens = broken

	requests := map[string]func(email string) error{
		"magic link": func(email string) error { return env.magic.RequestLink(ctx, email) },
		"reset":      func(email string) error { return env.reset.RequestReset(ctx, email) },
		"confirm":    func(email string) error { return env.accounts.ResendConfirmation(ctx, email) },
	}

	for name, request := range requests {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, request("nobody@example.com"))
			assert.NoError(t, request("listener@example.com"))
			assert.NoError(t, request("pending@example.com"))
		})
	}

	assert.Zero(t, env.channel.Count(), "nothing is delivered without a stored token")
}
