// Package analytics вычисляет агрегаты складской базы и собирает дашборд.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"whstats/internal/cache"
	"whstats/internal/database"
	"whstats/internal/schema"
	"whstats/internal/telemetry"
)

// Executor выполняет шаблон запроса в текущей схеме имен.
type Executor interface {
	Query(ctx context.Context, q schema.Query, args ...any) (database.Rows, error)
}

const (
	defaultDashboardTTL      = 300 * time.Second
	defaultComputeTimeout    = 30 * time.Second
	defaultLowStockThreshold = 10
	lowStockLimit            = 20
	analyticsTopLimit        = 20
)

// Options настраивает сервис.
type Options struct {
	DashboardTTL      time.Duration
	ComputeTimeout    time.Duration
	LowStockThreshold int
	Now               func() time.Time
}

// Service - движок агрегаций.
type Service struct {
	exec  Executor
	cache *cache.Cache
	log   *slog.Logger
	opts  Options
}

// New создает сервис. Нулевые поля Options заменяются значениями по умолчанию.
func New(exec Executor, c *cache.Cache, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.DashboardTTL <= 0 {
		opts.DashboardTTL = defaultDashboardTTL
	}
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = defaultComputeTimeout
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = defaultLowStockThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{exec: exec, cache: c, log: log, opts: opts}
}

// LowStockThreshold возвращает порог низкого остатка по умолчанию.
func (s *Service) LowStockThreshold() int { return s.opts.LowStockThreshold }

// collect выполняет запрос и сканирует каждую строку через scan.
// Ошибка запроса возвращается без обертки, чтобы классификация по ней работала.
func collect[T any](ctx context.Context, s *Service, metric string, q schema.Query, scan func(database.Rows) (T, error), args ...any) ([]T, error) {
	if s == nil || s.exec == nil {
		return nil, ErrNotConfigured
	}
	start := time.Now()
	defer func() {
		telemetry.QueryDuration.WithLabelValues(metric).Observe(time.Since(start).Seconds())
	}()

	rows, err := s.exec.Query(ctx, q, args...)
	if err != nil {
		s.log.Error("metric query failed", "metric", metric, "transient", database.IsTransient(err), "err", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			s.log.Error("metric scan failed", "metric", metric, "err", err)
			return nil, fmt.Errorf("%s: scan: %w", metric, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("metric rows failed", "metric", metric, "transient", database.IsTransient(err), "err", err)
		return nil, err
	}
	return out, nil
}

// one - collect для запросов, возвращающих ровно одну строку.
func one[T any](ctx context.Context, s *Service, metric string, q schema.Query, scan func(database.Rows) (T, error), args ...any) (T, error) {
	var zero T
	list, err := collect(ctx, s, metric, q, scan, args...)
	if err != nil {
		return zero, err
	}
	if len(list) == 0 {
		return zero, fmt.Errorf("%s: empty result", metric)
	}
	return list[0], nil
}
