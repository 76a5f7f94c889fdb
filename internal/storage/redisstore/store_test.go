package redisstore

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/screener/internal/common"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStoreWithClient(client, common.NewSilentLogger()), mr
}

func TestStore_SetGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithExpiry(ctx, "screener:a", []byte(`{"x":1}`), time.Minute))

	val, found, err := store.Get(ctx, "screener:a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"x":1}`, string(val))

	_, found, err = store.Get(ctx, "screener:missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Expiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithExpiry(ctx, "k", []byte("v"), 10*time.Second))
	mr.FastForward(11 * time.Second)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_KeysMatchingAndDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{
		"screener:market_performance:KOSPI:aaa",
		"screener:market_performance:NASDAQ:bbb",
		"screener:fluctuation:KOSPI:ccc",
		"other:x",
	} {
		require.NoError(t, store.SetWithExpiry(ctx, k, []byte("1"), time.Minute))
	}

	keys, err := store.KeysMatching(ctx, "screener:*:KOSPI:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"screener:fluctuation:KOSPI:ccc", "screener:market_performance:KOSPI:aaa"}, keys)

	require.NoError(t, store.Delete(ctx, keys...))

	all, err := store.KeysMatching(ctx, "screener:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"screener:market_performance:NASDAQ:bbb"}, all)

	assert.NoError(t, store.Delete(ctx))
}

func TestStore_Unreachable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	ctx := context.Background()
	assert.Error(t, store.Ping(ctx))
	_, _, err := store.Get(ctx, "k")
	assert.Error(t, err)
}
