package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSessionPrefix = "session:"
	redisOwnerPrefix   = "session-owner:"
)

// RedisSessionStore хранит сессии в Redis как ключи с TTL до истечения токена.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore подключается к Redis и проверяет соединение.
func NewRedisSessionStore(ctx context.Context, addr string) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisSessionStore{client: client}, nil
}

// Add регистрирует сессию до момента expiresAt и добавляет её в набор владельца.
// Набор живёт не меньше самой долгой сессии владельца.
func (s *RedisSessionStore) Add(ctx context.Context, jti, owner string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	ownerKey := redisOwnerPrefix + owner
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisSessionPrefix+jti, 1, ttl)
		pipe.SAdd(ctx, ownerKey, jti)
		pipe.ExpireGT(ctx, ownerKey, ttl)
		pipe.ExpireNX(ctx, ownerKey, ttl)
		return nil
	})
	return err
}

// Contains сообщает, действительна ли сессия.
func (s *RedisSessionStore) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, redisSessionPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove удаляет сессию.
func (s *RedisSessionStore) Remove(ctx context.Context, jti string) error {
	return s.client.Del(ctx, redisSessionPrefix+jti).Err()
}

// RemoveOwner удаляет все сессии владельца вместе с его набором.
func (s *RedisSessionStore) RemoveOwner(ctx context.Context, owner string) error {
	ownerKey := redisOwnerPrefix + owner
	jtis, err := s.client.SMembers(ctx, ownerKey).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, redisSessionPrefix+jti)
	}
	keys = append(keys, ownerKey)
	return s.client.Del(ctx, keys...).Err()
}

// Close закрывает соединение с Redis.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
