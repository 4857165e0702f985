package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bookstore-backend/internal/testutil"
)

func TestRedisLockIsExclusiveUntilReleased(t *testing.T) {
	store := testutil.NewMemoryStore()
	ctx := context.Background()

	first, err := NewRedisLock(store, "bs:cron:lock", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "bs:cron:lock", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, second.Release(ctx))
	require.True(t, store.Has("bs:cron:lock"))

	require.NoError(t, first.Release(ctx))
	require.False(t, store.Has("bs:cron:lock"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockKeepsForeignOwner(t *testing.T) {
	store := testutil.NewMemoryStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "bs:cron:lock", 0)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Set(ctx, "bs:cron:lock", "someone-else", 0))
	require.NoError(t, lock.Release(ctx))
	require.True(t, store.Has("bs:cron:lock"))
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "noop"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{acquired: true},
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	require.Zero(t, job.runs)
}
