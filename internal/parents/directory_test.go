package parents

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T, repo Source) (*Directory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDirectory(repo, client, time.Minute, nil), mr
}

func TestDirectoryCachesParent(t *testing.T) {
	repo := NewMemoryRepository(Parent{ID: 7, Name: "Ana Reyes", Email: "ana@example.com", Phone: "+15550100"})
	dir, mr := newTestDirectory(t, repo)
	ctx := context.Background()

	first, err := dir.GetParent(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", first.Email)
	require.True(t, mr.Exists("parents:v1:7"))

	second, err := dir.GetParent(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.Calls())

	require.NoError(t, dir.Invalidate(ctx, 7))
	_, err = dir.GetParent(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 2, repo.Calls())
}

func TestDirectoryMissingParentIsNotCached(t *testing.T) {
	repo := NewMemoryRepository()
	dir, mr := newTestDirectory(t, repo)

	_, err := dir.GetParent(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists("parents:v1:99"))
}

func TestDirectoryFallsBackWhenRedisDown(t *testing.T) {
	repo := NewMemoryRepository(Parent{ID: 1, Name: "Sam", Email: "sam@example.com"})
	dir, mr := newTestDirectory(t, repo)
	mr.Close()

	p, err := dir.GetParent(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Sam", p.Name)
}

func TestDirectoryWithoutCache(t *testing.T) {
	repo := NewMemoryRepository(Parent{ID: 3, Name: "Lee"})
	dir := NewDirectory(repo, nil, 0, nil)

	for i := 0; i < 3; i++ {
		_, err := dir.GetParent(context.Background(), 3)
		require.NoError(t, err)
	}
	require.Equal(t, 3, repo.Calls())
}
