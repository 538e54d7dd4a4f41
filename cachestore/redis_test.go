package cachestore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-login-service/cachestore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPrefix = "test:cache:"

func newRedisStore(t *testing.T) (*cachestore.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cachestore.NewRedisStoreWithClient(client, testPrefix), mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		store, _ := newRedisStore(t)
		blob, ok, err := store.Get(ctx, "nope")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, blob)
	})

	t.Run("set get delete", func(t *testing.T) {
		store, mr := newRedisStore(t)
		require.NoError(t, store.Set(ctx, "s1", []byte("blob-1")))
		require.True(t, mr.Exists(testPrefix+"s1"))

		blob, ok, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("blob-1"), blob)

		require.NoError(t, store.Delete(ctx, "s1"))
		require.False(t, mr.Exists(testPrefix+"s1"))
		require.NoError(t, store.Delete(ctx, "s1"))
	})

	t.Run("retain only removes stale prefixed keys", func(t *testing.T) {
		store, mr := newRedisStore(t)
		for i := range 5 {
			require.NoError(t, store.Set(ctx, fmt.Sprintf("s%d", i), []byte("x")))
		}
		require.NoError(t, mr.Set("other:app:key", "keep me"))

		removed, err := store.RetainOnly(ctx, []string{"s1", "s3", "missing"})
		require.NoError(t, err)
		require.Equal(t, 3, removed)

		require.ElementsMatch(t, []string{testPrefix + "s1", testPrefix + "s3", "other:app:key"}, mr.Keys())
	})

	t.Run("retain only with no survivors", func(t *testing.T) {
		store, mr := newRedisStore(t)
		require.NoError(t, store.Set(ctx, "s1", []byte("x")))
		removed, err := store.RetainOnly(ctx, nil)
		require.NoError(t, err)
		require.Equal(t, 1, removed)
		require.Empty(t, mr.Keys())
	})
}

func TestNewRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := cachestore.NewRedisStore(ctx, "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Health(ctx))

	require.NoError(t, store.Set(ctx, "s1", []byte("x")))
	require.True(t, mr.Exists(cachestore.DefaultKeyPrefix+"s1"))

	_, err = cachestore.NewRedisStore(ctx, "not a url", "")
	require.Error(t, err)
}
