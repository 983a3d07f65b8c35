package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPendingLoginStore(t *testing.T) (*PendingLoginStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewPendingLoginStore(client), mr
}

func savePending(t *testing.T, store *PendingLoginStore, sessionID string) *models.PendingLogin {
	t.Helper()

	login := &models.PendingLogin{
		SessionID: sessionID,
		UserID:    "user-1",
		CodeHash:  "hash-of-code",
		ExpiresAt: time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(context.Background(), login))
	return login
}

func matchHash(hash string) func(*models.PendingLogin) bool {
	return func(p *models.PendingLogin) bool { return p.CodeHash == hash }
}

func TestPendingLoginStore_SaveAndGet(t *testing.T) {
	store, mr := newTestPendingLoginStore(t)
	want := savePending(t, store, "session-1")

	got, err := store.Get(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))

	assert.True(t, mr.Exists("pending_login:session-1"))
	ttl := mr.TTL("pending_login:session-1")
	assert.Greater(t, ttl, 4*time.Minute)
	assert.LessOrEqual(t, ttl, 5*time.Minute)
}

func TestPendingLoginStore_Get_Unknown(t *testing.T) {
	store, _ := newTestPendingLoginStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPendingLoginStore_Attempt_CorrectCodeConsumesRecord(t *testing.T) {
	store, mr := newTestPendingLoginStore(t)
	savePending(t, store, "session-1")
	ctx := context.Background()

	record, err := store.Attempt(ctx, "session-1", 5, matchHash("hash-of-code"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", record.UserID)
	assert.False(t, mr.Exists("pending_login:session-1"))

	_, err = store.Attempt(ctx, "session-1", 5, matchHash("hash-of-code"))
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestPendingLoginStore_Attempt_LocksAtLimit(t *testing.T) {
	store, _ := newTestPendingLoginStore(t)
	savePending(t, store, "session-1")
	ctx := context.Background()

	for i := 1; i < 3; i++ {
		_, err := store.Attempt(ctx, "session-1", 3, matchHash("wrong"))
		assert.ErrorIs(t, err, models.ErrInvalidCredentials, "attempt %d", i)
	}

	_, err := store.Attempt(ctx, "session-1", 3, matchHash("wrong"))
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)

	// Locked: even the correct code is refused.
	_, err = store.Attempt(ctx, "session-1", 3, matchHash("hash-of-code"))
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)

	record, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, record.Locked)
	assert.Equal(t, 3, record.Attempts)
}

func TestPendingLoginStore_Attempt_Expired(t *testing.T) {
	store, mr := newTestPendingLoginStore(t)
	savePending(t, store, "session-1")

	mr.FastForward(6 * time.Minute)

	_, err := store.Attempt(context.Background(), "session-1", 5, matchHash("hash-of-code"))
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestPendingLoginStore_Attempt_ConcurrentCorrectCodesSucceedOnce(t *testing.T) {
	store, _ := newTestPendingLoginStore(t)
	savePending(t, store, "session-1")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Attempt(context.Background(), "session-1", 5, matchHash("hash-of-code"))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestPendingLoginStore_BackendDown(t *testing.T) {
	store, mr := newTestPendingLoginStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "session-1")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}
