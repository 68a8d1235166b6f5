package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_pharmacy/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores catalog reads. Lists are keyed by the query that produced them.
type Cache interface {
	GetMedicine(ctx context.Context, id string) (*domain.Medicine, error)
	SetMedicine(ctx context.Context, m *domain.Medicine) error
	GetList(ctx context.Context, key string) ([]domain.Medicine, error)
	SetList(ctx context.Context, key string, list []domain.Medicine) error
	Flush(ctx context.Context) error
}

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	var m domain.Medicine
	if err := r.get(ctx, medicineKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r RedisCache) SetMedicine(ctx context.Context, m *domain.Medicine) error {
	return r.set(ctx, medicineKey(m.ID), m)
}

func (r RedisCache) GetList(ctx context.Context, key string) ([]domain.Medicine, error) {
	var list []domain.Medicine
	if err := r.get(ctx, listKey(key), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r RedisCache) SetList(ctx context.Context, key string, list []domain.Medicine) error {
	return r.set(ctx, listKey(key), list)
}

// Flush removes every catalog key.
func (r RedisCache) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, "catalog:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r RedisCache) get(ctx context.Context, key string, into any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func (r RedisCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, key, data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func medicineKey(id string) string {
	return fmt.Sprintf("catalog:medicine:%s", id)
}

func listKey(key string) string {
	return fmt.Sprintf("catalog:list:%s", key)
}

// NoCache is used when no Redis address is configured.
type NoCache struct{}

func (NoCache) GetMedicine(context.Context, string) (*domain.Medicine, error) {
	return nil, ErrCacheMiss
}
func (NoCache) SetMedicine(context.Context, *domain.Medicine) error { return nil }
func (NoCache) GetList(context.Context, string) ([]domain.Medicine, error) {
	return nil, ErrCacheMiss
}
func (NoCache) SetList(context.Context, string, []domain.Medicine) error { return nil }
func (NoCache) Flush(context.Context) error                              { return nil }
