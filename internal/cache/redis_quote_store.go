package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parcel_ship_v1_202610/internal/model"

	"github.com/redis/go-redis/v9"
)

const quoteKeyPrefix = "shipdesk:quotes"

// RedisQuoteStore 报价缓存的 Redis 实现，过期由 Redis TTL 负责
type RedisQuoteStore struct {
	client *redis.Client
}

// NewRedisClient 创建 Redis 客户端并测试连接
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisQuoteStore 创建 Redis 报价缓存
func NewRedisQuoteStore(client *redis.Client) *RedisQuoteStore {
	return &RedisQuoteStore{client: client}
}

func quoteKey(orderID, signatureHash string) string {
	return fmt.Sprintf("%s:%s:%s", quoteKeyPrefix, orderID, signatureHash)
}

// FindValid 未命中或已过期返回 nil, nil
func (s *RedisQuoteStore) FindValid(ctx context.Context, orderID, signatureHash string, now time.Time) (*model.RateQuoteCache, error) {
	data, err := s.client.Get(ctx, quoteKey(orderID, signatureHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry model.RateQuoteCache
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cached quotes: %w", err)
	}
	if !entry.ExpiresAt.After(now) {
		return nil, nil
	}
	return &entry, nil
}

// Upsert SET 覆盖同一 key，TTL 取 expires_at
func (s *RedisQuoteStore) Upsert(ctx context.Context, entry *model.RateQuoteCache) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, quoteKey(entry.OrderID, entry.SignatureHash), data, ttl).Err()
}
