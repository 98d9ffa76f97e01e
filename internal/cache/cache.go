/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps assembled day plans in Redis so repeated reads skip the
// database. Redis being down never fails a request: the cache degrades to a
// no-op and every lookup is a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/dagr/internal/events"
)

const keyDayPlan = "dagr:cache:day_plan:" // + plan_id

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DayPlanTTL time.Duration

	// DisableOnError trips the breaker on the first Redis error instead of
	// retrying every request against a broken connection.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		DayPlanTTL:     5 * time.Minute,
		DisableOnError: true,
	}
}

// Cache is a Redis-backed plan cache with a trip-once breaker.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	cfg    Config

	mu       sync.RWMutex
	disabled bool
}

// New dials Redis and returns the cache. When the ping fails the cache comes
// back already disabled rather than erroring, so callers can wire it
// unconditionally.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	c := &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
		cfg:    cfg,
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis unreachable, running without plan cache")
		c.disabled = true
		return c, nil
	}

	c.client = client
	c.logger.Info().Str("addr", cfg.RedisAddr).Msg("plan cache connected")
	return c, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// GetDayPlan loads a cached plan payload into dest. The boolean is false on a
// miss, including whenever the cache is disabled.
func (c *Cache) GetDayPlan(ctx context.Context, planID string, dest any) (bool, error) {
	if !c.ready() {
		return false, nil
	}

	data, err := c.client.Get(ctx, keyDayPlan+planID).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.fail("get", err)
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// Stale shape from an older build; treat as a miss.
		c.logger.Debug().Err(err).Str("plan", planID).Msg("discarding undecodable cache entry")
		return false, nil
	}
	return true, nil
}

// SetDayPlan stores the assembled plan payload under its TTL.
func (c *Cache) SetDayPlan(ctx context.Context, planID string, value any) error {
	if !c.ready() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal plan for cache: %w", err)
	}
	if err := c.client.Set(ctx, keyDayPlan+planID, data, c.cfg.DayPlanTTL).Err(); err != nil {
		c.fail("set", err)
		return err
	}
	return nil
}

// InvalidateDayPlan evicts a plan.
func (c *Cache) InvalidateDayPlan(ctx context.Context, planID string) error {
	if !c.ready() {
		return nil
	}
	if err := c.client.Del(ctx, keyDayPlan+planID).Err(); err != nil {
		c.fail("del", err)
		return err
	}
	return nil
}

// SubscribeInvalidation evicts plans when mutation events cross the bus, so
// every write path invalidates without the writers knowing about the cache.
// Listeners run until the context is cancelled.
func (c *Cache) SubscribeInvalidation(ctx context.Context, bus *events.Bus) {
	types := []events.EventType{
		events.EventPlanUpdated,
		events.EventPlanCompacted,
		events.EventPlanReflowed,
		events.EventWindowCreated,
		events.EventWindowUpdated,
		events.EventWindowDeleted,
	}

	for _, eventType := range types {
		sub := bus.Subscribe(eventType)
		go func(et events.EventType, sub events.Subscriber) {
			for {
				select {
				case <-ctx.Done():
					bus.Unsubscribe(et, sub)
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					if planID, _ := payload["plan_id"].(string); planID != "" {
						_ = c.InvalidateDayPlan(context.Background(), planID)
					}
				}
			}
		}(eventType, sub)
	}
}

func (c *Cache) ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// fail records a Redis error and, when configured, trips the breaker. The
// breaker never resets; a restart re-dials.
func (c *Cache) fail(op string, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	c.logger.Debug().Err(err).Str("op", op).Msg("cache operation failed")

	if c.cfg.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("plan cache disabled after Redis error")
	}
}
