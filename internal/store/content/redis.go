package content

import (
	"context"
	"fmt"

	"qs_chat/internal/service/redis"
)

// RedisStore backs the content-addressed store with redis. Writes use SetNX
// so a duplicate put never mutates an existing blob.
type RedisStore struct {
	svc *redis.RedisService
}

func NewRedisStore(svc *redis.RedisService) *RedisStore {
	return &RedisStore{
		svc: svc,
	}
}

func (s *RedisStore) Put(ctx context.Context, data []byte) (string, error) {
	id := ID(data)
	_, err := s.svc.SetNX(ctx, blobKey(id), data, 0)
	if err != nil {
		return "", fmt.Errorf("redis setnx: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	v, err := s.svc.Get(ctx, blobKey(id))
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return []byte(v), nil
}

func blobKey(id string) string {
	return fmt.Sprintf("blob: %s", id)
}
