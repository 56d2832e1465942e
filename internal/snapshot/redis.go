package snapshot

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// RedisConfig holds Redis snapshot store settings.
type RedisConfig struct {
	URL    string
	Prefix string        // Key prefix (default "rice-eval:run:")
	TTL    time.Duration // 0 = no expiry
}

// RedisStore keeps snapshots as JSON strings in Redis, with a sorted-set
// index of run IDs scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis. Returns error if connection fails.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing redis URL", err)
	}

	client := redis.NewClient(opts)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "connecting to redis", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "rice-eval:run:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
	}, nil
}

func (rs *RedisStore) key(runID string) string {
	return rs.prefix + runID
}

func (rs *RedisStore) indexKey() string {
	return rs.prefix + "index"
}

// Save writes the snapshot and refreshes the run index in one pipeline.
func (rs *RedisStore) Save(ctx context.Context, s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return errors.StorageError("encoding snapshot", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, rs.key(s.RunID), data, rs.ttl)
	pipe.ZAdd(ctx, rs.indexKey(), redis.Z{
		Score:  float64(s.CreatedAt.UnixMilli()),
		Member: s.RunID,
	})

	// Drop index entries whose snapshots have expired
	if rs.ttl > 0 {
		minScore := time.Now().Add(-rs.ttl).UnixMilli()
		pipe.ZRemRangeByScore(ctx, rs.indexKey(), "-inf", fmt.Sprintf("(%d", minScore))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("saving snapshot", err)
	}
	return nil
}

// Load reads a snapshot.
func (rs *RedisStore) Load(ctx context.Context, runID string) (Snapshot, error) {
	data, err := rs.client.Get(ctx, rs.key(runID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return Snapshot{}, errors.NotFoundError("run " + runID)
	}
	if err != nil {
		return Snapshot{}, errors.StorageError("loading snapshot", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, errors.StorageError("decoding snapshot", err)
	}
	return s, nil
}

// List returns run IDs, newest first.
func (rs *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := rs.client.ZRevRange(ctx, rs.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.StorageError("listing runs", err)
	}
	return ids, nil
}

// Delete removes a run and its index entry.
func (rs *RedisStore) Delete(ctx context.Context, runID string) error {
	pipe := rs.client.TxPipeline()
	pipe.Del(ctx, rs.key(runID))
	pipe.ZRem(ctx, rs.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("deleting snapshot", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
