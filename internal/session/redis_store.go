package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eternisai/groupspend-sync/internal/api"
)

const (
	keyAccessToken  = "accessToken"
	keyRefreshToken = "refreshToken"
	keyUser         = "user"
)

// RedisStore persists the session under three prefixed Redis keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed session store.
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) Load(ctx context.Context) (Persisted, error) {
	vals, err := s.client.MGet(ctx, s.key(keyAccessToken), s.key(keyRefreshToken), s.key(keyUser)).Result()
	if err != nil {
		return Persisted{}, fmt.Errorf("load session: %w", err)
	}

	str := func(v any) string {
		out, _ := v.(string)
		return out
	}

	return Persisted{
		AccessToken:  str(vals[0]),
		RefreshToken: str(vals[1]),
		User:         decodeUser([]byte(str(vals[2]))),
	}, nil
}

func (s *RedisStore) SaveTokens(ctx context.Context, accessToken, refreshToken string) error {
	err := s.client.MSet(ctx,
		s.key(keyAccessToken), accessToken,
		s.key(keyRefreshToken), refreshToken,
	).Err()
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveUser(ctx context.Context, user api.UserProfile) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.client.Set(ctx, s.key(keyUser), data, 0).Err(); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(keyAccessToken), s.key(keyRefreshToken), s.key(keyUser)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
