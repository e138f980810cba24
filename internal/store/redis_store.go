package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the store writes.
const DefaultRedisPrefix = "beamlayout"

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// Timeout bounds every store operation. Defaults to 5s.
	Timeout time.Duration
}

// RedisStore keeps checkpoints in Redis so several servers can share them.
// Each checkpoint is a JSON string at <prefix>:checkpoint:<jobID>; the set
// <prefix>:checkpoints indexes the job ids.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix, cfg.Timeout), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, timeout time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisStore{client: client, prefix: prefix, timeout: timeout}
}

// Close releases the client connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(jobID string) string {
	return r.prefix + ":checkpoint:" + jobID
}

func (r *RedisStore) indexKey() string {
	return r.prefix + ":checkpoints"
}

func (r *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

// SaveCheckpoint stores the checkpoint and indexes its job id in one
// transaction.
func (r *RedisStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	ctx, cancel := r.ctx()
	defer cancel()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(jobID), data, 0)
		pipe.SAdd(ctx, r.indexKey(), jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "backend", "redis")
	return nil
}

// LoadCheckpoint fetches the checkpoint of jobID.
func (r *RedisStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}
	ctx, cancel := r.ctx()
	defer cancel()

	data, err := r.client.Get(ctx, r.key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint from redis: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints loads every indexed checkpoint. Index entries whose
// checkpoint has disappeared are pruned.
func (r *RedisStore) ListCheckpoints() ([]CheckpointInfo, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints from redis: %w", err)
	}

	infos := []CheckpointInfo{}
	for _, id := range ids {
		checkpoint, err := r.LoadCheckpoint(id)
		if errors.Is(err, ErrNotFound) {
			r.client.SRem(ctx, r.indexKey(), id)
			continue
		}
		if err != nil {
			slog.Warn("Failed to load checkpoint for listing", "jobID", id, "error", err)
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}
	sortNewestFirst(infos)
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint and its index entry.
func (r *RedisStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	ctx, cancel := r.ctx()
	defer cancel()

	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.key(jobID))
		pipe.SRem(ctx, r.indexKey(), jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint from redis: %w", err)
	}
	if del.Val() == 0 {
		return &NotFoundError{JobID: jobID}
	}

	slog.Debug("Checkpoint deleted", "jobID", jobID, "backend", "redis")
	return nil
}
