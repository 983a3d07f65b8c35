//go:build integration

package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenRepository_RotateChainsFamily(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	repo := NewRefreshTokenRepository(testDB, 5*time.Second)
	user := seedUser(t, "rotate@example.com", "rotate", models.StatusActive)

	first, err := repo.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: "hash-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.FamilyID)
	assert.Nil(t, first.ParentID)

	second, err := repo.Rotate(ctx, "hash-1", "hash-2", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.FamilyID, second.FamilyID)
	require.NotNil(t, second.ParentID)
	assert.Equal(t, first.ID, *second.ParentID)

	old, err := repo.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, models.RefreshTokenRotated, old.State(time.Now()))

	_, err = repo.Rotate(ctx, "hash-1", "hash-3", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.GetByHash(ctx, "hash-3")
	assert.ErrorIs(t, err, models.ErrNotFound, "failed rotation must not insert a successor")
}

func TestRefreshTokenRepository_RotateExpired(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	repo := NewRefreshTokenRepository(testDB, 5*time.Second)
	user := seedUser(t, "expired@example.com", "expired", models.StatusActive)

	_, err := repo.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: "old",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = repo.Rotate(ctx, "old", "new", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrNotFound)

	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestRefreshTokenRepository_ConcurrentRotateSucceedsOnce(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	repo := NewRefreshTokenRepository(testDB, 5*time.Second)
	user := seedUser(t, "race@example.com", "race", models.StatusActive)

	_, err := repo.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: "shared",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Rotate(ctx, "shared", fmt.Sprintf("successor-%d", i), time.Now().Add(time.Hour))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	active, err := repo.ListActive(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRefreshTokenRepository_RevokeAllForUser(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	repo := NewRefreshTokenRepository(testDB, 5*time.Second)
	alice := seedUser(t, "alice@example.com", "alice", models.StatusActive)
	bob := seedUser(t, "bob@example.com", "bob", models.StatusActive)

	for i, owner := range []string{alice.ID, alice.ID, bob.ID} {
		_, err := repo.Create(ctx, &models.RefreshToken{
			UserID:    owner,
			TokenHash: fmt.Sprintf("t-%d", i),
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}

	revoked, err := repo.RevokeAllForUser(ctx, alice.ID, models.RevokeReasonLogoutAll)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	active, err := repo.ListActive(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, changed, err := repo.Revoke(ctx, "t-0", models.RevokeReasonLogout)
	require.NoError(t, err)
	assert.False(t, changed, "revoking twice is a no-op")
}

func TestRefreshTokenRepository_RotateForDisabledAccount(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	repo := NewRefreshTokenRepository(testDB, 5*time.Second)
	user := seedUser(t, "gone@example.com", "gone", models.StatusDisabled)

	_, err := repo.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: "stale",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = repo.Rotate(ctx, "stale", "never", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrAccountDisabled)

	presented, err := repo.GetByHash(ctx, "stale")
	require.NoError(t, err)
	assert.True(t, presented.IsRevoked)
	require.NotNil(t, presented.RevokeReason)
	assert.Equal(t, models.RevokeReasonDisabled, *presented.RevokeReason)

	_, err = repo.GetByHash(ctx, "never")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// Each round races one rotation against one per-account revocation. Whatever
// the interleaving, no token of the account may survive.
func TestRefreshTokenRepository_RotateRacingAccountRevocation(t *testing.T) {
	const rounds = 20

	revocations := map[string]func(ctx context.Context, userID, resetID string) error{
		"password reset": func(ctx context.Context, _, resetID string) error {
			_, err := NewUserRepository(testDB).ResetPasswordWithToken(ctx, resetID, "$2a$10$replaced")
			return err
		},
		"disable": func(ctx context.Context, userID, _ string) error {
			_, err := NewUserRepository(testDB).DisableAndRevokeSessions(ctx, userID)
			return err
		},
		"revoke all": func(ctx context.Context, userID, _ string) error {
			_, err := NewRefreshTokenRepository(testDB, 5*time.Second).RevokeAllForUser(ctx, userID, models.RevokeReasonLogoutAll)
			return err
		},
	}

	for name, revoke := range revocations {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := NewRefreshTokenRepository(testDB, 5*time.Second)

			for round := 0; round < rounds; round++ {
				cleanupTables(t)
				user := seedUser(t, "racer@example.com", "racer", models.StatusActive)
				resetID := seedOneTimeToken(t, user.ID, models.PurposePasswordReset, time.Hour)

				_, err := repo.Create(ctx, &models.RefreshToken{
					UserID:    user.ID,
					TokenHash: "current",
					ExpiresAt: time.Now().Add(time.Hour),
				})
				require.NoError(t, err)

				var wg sync.WaitGroup
				var revokeErr error
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, _ = repo.Rotate(ctx, "current", "next", time.Now().Add(time.Hour))
				}()
				go func() {
					defer wg.Done()
					revokeErr = revoke(ctx, user.ID, resetID)
				}()
				wg.Wait()

				require.NoError(t, revokeErr)

				active, err := repo.ListActive(ctx, user.ID)
				require.NoError(t, err)
				assert.Empty(t, active, "round %d left a live token", round)
			}
		})
	}
}

func TestUserRepository_MalformedIDIsBadRequest(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()

	_, err := NewUserRepository(testDB).DisableAndRevokeSessions(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
