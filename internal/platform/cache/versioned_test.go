package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Code      string `json:"code"`
	Available int64  `json:"available"`
}

func TestVersionedFetchAndBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewVersioned(client, "warehouse:summary", time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return summary{Code: "ITEM-A", Available: int64(10 * calls)}, nil
	}

	key, err := c.BuildKey(ctx, "ITEM-A")
	require.NoError(t, err)
	require.Equal(t, "warehouse:summary:ITEM-A:1", key)

	var got summary
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, int64(10), got.Available)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "ITEM-A")
	require.NoError(t, err)
	require.Equal(t, "warehouse:summary:ITEM-A:2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, int64(20), got.Available)
	require.Equal(t, 2, calls)
}

func TestVersionedWithoutClient(t *testing.T) {
	c := NewVersioned(nil, "warehouse:summary", time.Minute)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, "warehouse:summary:X", key)

	var got summary
	require.NoError(t, c.FetchJSON(ctx, key, &got, func(context.Context) (any, error) {
		return summary{Code: "X", Available: 3}, nil
	}))
	require.Equal(t, int64(3), got.Available)
	require.NoError(t, c.Bump(ctx))
}
