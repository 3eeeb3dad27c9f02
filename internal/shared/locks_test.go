package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerAcquireIsExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, SchedulingPassLockKey, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, SchedulingPassLockKey, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists(SchedulingPassLockKey))

	again, err := locker.Acquire(ctx, SchedulingPassLockKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLockerReleaseKeepsForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	other, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	require.True(t, mr.Exists("k"), "stale holder must not drop the new lock")
	require.NoError(t, other(ctx))
}

func TestLockerWithoutRedisAlwaysGrants(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestReminderClaimKeyUsesCalendarDay(t *testing.T) {
	id := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	day := time.Date(2023, 12, 29, 23, 0, 0, 0, time.UTC)
	require.Equal(t, "reminder:7c9e6679-7425-40de-944b-e07fc1f90ae7:2023-12-29", ReminderClaimKey(id, day))
}

func TestMemoryIdempotencyStore(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "a", "reminders"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "a", "reminders"), ErrIdempotencyConflict)
	require.Error(t, store.CheckAndInsert(ctx, " ", "reminders"))

	require.NoError(t, store.Delete(ctx, "a"))
	require.False(t, store.Has("a"))
	require.NoError(t, store.CheckAndInsert(ctx, "a", "reminders"))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base.AddDate(0, 0, 31) }
	store.keys["old"] = memoryKey{module: "reminders", createdAt: base}
	removed, err := store.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
	require.True(t, store.Has("a"))
}
