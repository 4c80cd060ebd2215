// Package cache реализует cache-aside поверх подключаемого бэкенда.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"whstats/internal/telemetry"
)

// ErrNotConfigured - кэш не подключен.
var ErrNotConfigured = errors.New("cache is not configured")

// Cache - get-or-compute с TTL. Значения хранятся в JSON, поэтому каждый
// читатель получает собственную копию.
type Cache struct {
	store  Store
	log    *slog.Logger
	flight singleflight.Group
}

// New создает кэш поверх бэкенда.
func New(store Store, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, log: log}
}

// Invalidate удаляет ключ.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.store == nil {
		return ErrNotConfigured
	}
	return c.store.Invalidate(ctx, key)
}

// Close закрывает бэкенд.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

// GetOrSet возвращает живое значение по ключу или вычисляет его через compute,
// сохраняет на ttl и возвращает. Одновременные промахи по одному ключу
// разделяют одно вычисление. compute получает контекст без отмены вызывающего:
// отмена одного вызывающего не обрывает общее вычисление, он лишь перестает
// его ждать. Ошибки бэкенда не фатальны: чтение превращается в промах,
// запись - в несохраненное значение.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || c.store == nil {
		return zero, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if v, ok := lookup[T](ctx, c, key); ok {
		telemetry.CacheRequests.WithLabelValues("hit").Inc()
		return v, nil
	}
	telemetry.CacheRequests.WithLabelValues("miss").Inc()

	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		// другой полет мог заполнить ключ, пока мы ждали
		if v, ok := lookup[T](shared, c, key); ok {
			return v, nil
		}
		v, err := compute(shared)
		if err != nil {
			telemetry.CacheLoads.WithLabelValues("error").Inc()
			return nil, err
		}
		telemetry.CacheLoads.WithLabelValues("ok").Inc()
		c.put(shared, key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache key %s holds %T", key, res.Val)
		}
		return v, nil
	}
}

// Set перезаписывает значение ключа. Используется для обновления без
// предварительного сброса: старое значение живет, пока новое не готово.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, raw, ttl)
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", "key", key, "err", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("cache entry undecodable", "key", key, "err", err)
		return v, false
	}
	return v, true
}

func (c *Cache) put(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.log.Warn("cache write failed", "key", key, "err", err)
	}
}
