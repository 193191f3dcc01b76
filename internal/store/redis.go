package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const snapshotPrefix = "moveline:session:"

// ConnectRedis creates a Redis client from a URL.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "redis: ping")
	}
	return client, nil
}

// SnapshotCache keeps session snapshots in Redis. Every write refreshes the
// TTL.
type SnapshotCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewSnapshotCache(client redis.Cmdable, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(id string) string { return snapshotPrefix + id }

// Put stores v under the session id.
func (c *SnapshotCache) Put(ctx context.Context, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "redis: encode snapshot")
	}
	if err := c.client.Set(ctx, snapshotKey(id), data, c.ttl).Err(); err != nil {
		return eris.Wrapf(err, "redis: put %s", id)
	}
	return nil
}

// Get decodes the snapshot for id into v. It reports false on a miss.
func (c *SnapshotCache) Get(ctx context.Context, id string, v any) (bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "redis: get %s", id)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, eris.Wrapf(err, "redis: decode %s", id)
	}
	return true, nil
}

func (c *SnapshotCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, snapshotKey(id)).Err(); err != nil {
		return eris.Wrapf(err, "redis: delete %s", id)
	}
	return nil
}
