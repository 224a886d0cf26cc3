package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each cart as a JSON document that expires after ttl of inactivity.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "cart:", ttl: ttl}
}

func (r *RedisStore) key(session string) string {
	return r.prefix + session
}

func (r *RedisStore) Load(ctx context.Context, session string) (*Cart, error) {
	raw, err := r.client.Get(ctx, r.key(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(session), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", session, err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", session, err)
	}
	if c.Lines == nil {
		c.Lines = []Line{}
	}
	return &c, nil
}

func (r *RedisStore) Save(ctx context.Context, c *Cart) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", c.Session, err)
	}
	return r.client.Set(ctx, r.key(c.Session), payload, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, session string) error {
	return r.client.Del(ctx, r.key(session)).Err()
}
