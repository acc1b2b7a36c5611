package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cartKeyPrefix   = "cart:"
	maxWatchRetries = 10
)

var errTooMuchContention = errors.New("cart update conflicted too many times")

// RedisStore keeps each cart as a JSON document under cart:{userID}. Updates
// are optimistic: WATCH the key, rewrite it in MULTI, retry on conflict.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func cartKey(userID string) string { return cartKeyPrefix + userID }

func (s *RedisStore) Get(ctx context.Context, userID string) ([]Item, error) {
	return load(ctx, s.client, cartKey(userID))
}

func (s *RedisStore) Add(ctx context.Context, userID string, item Item) ([]Item, error) {
	if err := item.validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, func(items []Item) []Item { return addItem(items, item) })
}

func (s *RedisStore) UpdateQuantity(ctx context.Context, userID, productID string, delta int) ([]Item, error) {
	return s.mutate(ctx, userID, func(items []Item) []Item { return updateQuantity(items, productID, delta) })
}

func (s *RedisStore) Remove(ctx context.Context, userID, productID string) ([]Item, error) {
	return s.mutate(ctx, userID, func(items []Item) []Item { return removeItem(items, productID) })
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, cartKey(userID)).Err()
}

func (s *RedisStore) mutate(ctx context.Context, userID string, fn func([]Item) []Item) ([]Item, error) {
	key := cartKey(userID)
	var result []Item

	txf := func(tx *redis.Tx) error {
		items, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		next := fn(items)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(next) == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to marshal cart: %w", err)
			}
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = []Item{}
		}
		return result, nil
	}
	return nil, errTooMuchContention
}

// getter is the read side shared by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) ([]Item, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart: %w", err)
	}
	return items, nil
}
