package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
)

// RedisConfig describes the Redis connection used for agent state.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore keeps agent progress in Redis, one JSON value per agent.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "pinagent:state"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "connect to redis")
	}
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

func (r *RedisStore) key(agentID int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, agentID)
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, agentID int64) (Record, error) {
	raw, err := r.client.Get(ctx, r.key(agentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load agent state")
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode agent state")
	}
	return rec, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, agentID int64, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode agent state")
	}
	if err := r.client.Set(ctx, r.key(agentID), raw, r.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "save agent state")
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
