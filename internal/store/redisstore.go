package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/pkg/model"
)

const ratesKey = "hub:rates"

// RedisRatesStore keeps the rates document as one JSON value in Redis so
// several hub instances can share a cache.
type RedisRatesStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRatesStore connects and pings the Redis backend.
func NewRedisRatesStore(addr string, db int, logger *zap.Logger) (*RedisRatesStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisRatesStore{client: rdb, logger: logger}, nil
}

func (s *RedisRatesStore) LoadRates(ctx context.Context) (*model.RatesDocument, error) {
	data, err := s.client.Get(ctx, ratesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewRatesDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get rates: %w", err)
	}

	var doc model.RatesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rates document: %w", err)
	}
	if doc.Pairs == nil {
		doc.Pairs = make(map[string]model.PairRate)
	}
	return &doc, nil
}

func (s *RedisRatesStore) SaveRates(ctx context.Context, doc *model.RatesDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal rates document: %w", err)
	}
	// No TTL: staleness is judged per pair from updated_at, not by Redis.
	if err := s.client.Set(ctx, ratesKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set rates: %w", err)
	}
	return nil
}

func (s *RedisRatesStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisRatesStore) Close() error {
	return s.client.Close()
}
