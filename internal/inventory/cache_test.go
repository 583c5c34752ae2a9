package inventory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotCache(client), mr
}

func TestSnapshotCacheLoadsOnce(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (Snapshot, error) {
		loads++
		return Snapshot{ProductID: 1, LocationID: 2, OnHand: 50}, nil
	}

	snap, err := cache.GetOrLoad(ctx, 1, 2, load)
	require.NoError(t, err)
	require.InDelta(t, 50, snap.OnHand, 0.0001)

	snap, err = cache.GetOrLoad(ctx, 1, 2, load)
	require.NoError(t, err)
	require.InDelta(t, 50, snap.OnHand, 0.0001)
	require.Equal(t, 1, loads)
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (Snapshot, error) {
		loads++
		return Snapshot{ProductID: 1, LocationID: 2, OnHand: float64(loads)}, nil
	}

	_, err := cache.GetOrLoad(ctx, 1, 2, load)
	require.NoError(t, err)

	cache.Invalidate(ctx, 1, 2)

	snap, err := cache.GetOrLoad(ctx, 1, 2, load)
	require.NoError(t, err)
	require.InDelta(t, 2, snap.OnHand, 0.0001)
	require.Equal(t, 2, loads)
}

func TestSnapshotCacheNilClientFallsThrough(t *testing.T) {
	var cache *SnapshotCache
	ctx := context.Background()

	loads := 0
	snap, err := cache.GetOrLoad(ctx, 1, 2, func(ctx context.Context) (Snapshot, error) {
		loads++
		return Snapshot{OnHand: 7}, nil
	})
	require.NoError(t, err)
	require.InDelta(t, 7, snap.OnHand, 0.0001)
	require.Equal(t, 1, loads)
}
