package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

const redisKeyPrefix = "ivrflow:session:"

// RedisStore persists sessions as JSON values with a TTL, so abandoned state
// ages out of Redis even if the janitor never runs. A zero TTL disables
// expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store backed by the given client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal session").WithSession(s.ID).WithCause(err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.ID, data, r.ttl).Err(); err != nil {
		return schema.NewError(schema.ErrCodeStore, "save session").WithSession(s.ID).WithCause(err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id).WithSession(id)
		}
		return nil, schema.NewError(schema.ErrCodeStore, "load session").WithSession(id).WithCause(err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "decode session").WithSession(id).WithCause(err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete session").WithSession(id).WithCause(err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]*Session, error) {
	var (
		out    []*Session
		cursor uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan sessions").WithCause(err)
		}
		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue // expired between scan and get
				}
				return nil, schema.NewError(schema.ErrCodeStore, "load session").WithCause(err)
			}
			var s Session
			if err := json.Unmarshal(data, &s); err != nil {
				return nil, schema.NewError(schema.ErrCodeStore, "decode session").WithCause(err)
			}
			out = append(out, &s)
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

var _ Store = (*RedisStore)(nil)
