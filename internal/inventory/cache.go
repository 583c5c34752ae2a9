package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const snapshotTTL = 30 * time.Second

// SnapshotCache keeps short-lived stock snapshots in Redis. Snapshots are
// advisory reads; a miss or Redis outage falls through to the database.
type SnapshotCache struct {
	client *redis.Client
	group  singleflight.Group
}

// NewSnapshotCache constructs SnapshotCache. A nil client disables caching.
func NewSnapshotCache(client *redis.Client) *SnapshotCache {
	return &SnapshotCache{client: client}
}

func snapshotKey(productID, locationID int64) string {
	return fmt.Sprintf("inv:snapshot:%d:%d", productID, locationID)
}

// GetOrLoad returns the cached snapshot, loading and storing it on a miss.
// Concurrent misses for the same key collapse into one load.
func (c *SnapshotCache) GetOrLoad(ctx context.Context, productID, locationID int64, load func(context.Context) (Snapshot, error)) (Snapshot, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key := snapshotKey(productID, locationID)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var snap Snapshot
		if json.Unmarshal(raw, &snap) == nil {
			return snap, nil
		}
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		snap, err := load(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		if raw, err := json.Marshal(snap); err == nil {
			_ = c.client.Set(ctx, key, raw, snapshotTTL).Err()
		}
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Invalidate drops cached snapshots for the given product and locations.
func (c *SnapshotCache) Invalidate(ctx context.Context, productID int64, locationIDs ...int64) {
	if c == nil || c.client == nil {
		return
	}
	keys := make([]string, 0, len(locationIDs))
	for _, loc := range locationIDs {
		keys = append(keys, snapshotKey(productID, loc))
	}
	if len(keys) > 0 {
		_ = c.client.Del(ctx, keys...).Err()
	}
}
