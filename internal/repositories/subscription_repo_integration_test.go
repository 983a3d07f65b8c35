//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionRepository_Idempotent(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	repo := NewSubscriptionRepository(testDB)
	user := seedUser(t, "fan@example.com", "fan", models.StatusActive)

	require.NoError(t, repo.AddArtist(ctx, user.ID, "artist-1"))
	require.NoError(t, repo.AddArtist(ctx, user.ID, "artist-1"))
	require.NoError(t, repo.RemoveArtist(ctx, user.ID, "artist-1"))
	require.NoError(t, repo.AddArtist(ctx, user.ID, "artist-1"))
	require.NoError(t, repo.AddGenre(ctx, user.ID, "jazz"))
	require.NoError(t, repo.AddGenre(ctx, user.ID, "jazz"))

	subs, err := repo.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, subs.Artists, 1)
	assert.Len(t, subs.Genres, 1)
}

func TestNotificationRepository_FanOutAndRead(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	subs := NewSubscriptionRepository(testDB)
	repo := NewNotificationRepository(testDB)

	fan := seedUser(t, "fan@example.com", "fan", models.StatusActive)
	other := seedUser(t, "other@example.com", "other", models.StatusActive)
	disabled := seedUser(t, "off@example.com", "off", models.StatusDisabled)

	require.NoError(t, subs.AddArtist(ctx, fan.ID, "artist-1"))
	require.NoError(t, subs.AddArtist(ctx, disabled.ID, "artist-1"))
	require.NoError(t, subs.AddGenre(ctx, other.ID, "jazz"))

	n, err := repo.FanOutToArtistSubscribers(ctx, "artist-1", "New release", "Out now")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.FanOutToGenreSubscribers(ctx, "jazz", "Jazz week", "Listen")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := repo.ListForUser(ctx, fan.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ArtistID)
	assert.Equal(t, "artist-1", *list[0].ArtistID)

	unread, err := repo.CountUnread(ctx, fan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	assert.ErrorIs(t, repo.MarkRead(ctx, other.ID, list[0].ID), models.ErrNotFound)
	require.NoError(t, repo.MarkRead(ctx, fan.ID, list[0].ID))

	unread, err = repo.CountUnread(ctx, fan.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}
