package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"whstats/internal/cache"
	"whstats/internal/database"
	"whstats/internal/telemetry"
)

// DashboardKey - ключ снимка дашборда в кэше.
const DashboardKey = "stats:dashboard"

const (
	dashboardTopProducts  = 5
	dashboardRecentOrders = 5
	dashboardWindowDays   = 7
)

// Outcome - результат одной ветки: значение либо причина сбоя.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Degraded сообщает, что ветка завершилась ошибкой.
func (o Outcome[T]) Degraded() bool { return o.Err != nil }

// Dashboard возвращает снимок из кэша или собирает новый. Сборка идет на
// контексте без отмены вызывающего и ограничена ComputeTimeout.
func (s *Service) Dashboard(ctx context.Context) (DashboardSnapshot, error) {
	if s == nil || s.exec == nil {
		return DashboardSnapshot{}, ErrNotConfigured
	}
	if s.cache == nil {
		return DashboardSnapshot{}, fmt.Errorf("%w: cache", ErrNotConfigured)
	}
	snap, err := cache.GetOrSet(ctx, s.cache, DashboardKey, s.opts.DashboardTTL, s.boundedCompose)
	if errors.Is(err, cache.ErrNotConfigured) {
		return DashboardSnapshot{}, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	return snap, err
}

// RefreshDashboard собирает новый снимок и только после успеха заменяет им
// кэшированный. При ошибке прежний снимок остается в кэше.
func (s *Service) RefreshDashboard(ctx context.Context) (DashboardSnapshot, error) {
	if s == nil || s.exec == nil || s.cache == nil {
		return DashboardSnapshot{}, ErrNotConfigured
	}
	snap, err := s.boundedCompose(ctx)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	if err := s.cache.Set(ctx, DashboardKey, snap, s.opts.DashboardTTL); err != nil {
		s.log.Warn("dashboard cache write failed", "err", err)
	}
	return snap, nil
}

func (s *Service) boundedCompose(ctx context.Context) (DashboardSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ComputeTimeout)
	defer cancel()
	return s.composeDashboard(ctx)
}

// composeDashboard запускает все ветки одновременно и дожидается каждой.
// Упавшая ветка заменяется значением по умолчанию. Ошибкой завершаются сбой
// самой сборки, истекший контекст и недоступность базы (все ветки упали
// на соединении): такой снимок нельзя кэшировать.
func (s *Service) composeDashboard(ctx context.Context) (snap DashboardSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dashboard compose panicked", "panic", r)
			err = fmt.Errorf("compose dashboard: panic: %v", r)
		}
	}()

	var (
		wg           sync.WaitGroup
		counts       Outcome[Counts]
		revenue      Outcome[Revenue]
		todayOrders  Outcome[int64]
		lowStock     Outcome[[]StockItem]
		topProducts  Outcome[[]TopProduct]
		recentOrders Outcome[[]OrderSummary]
		revenueByDay Outcome[[]PeriodRevenue]
		ordersByType Outcome[[]TypeBreakdown]
		ordersByDay  Outcome[[]DayCount]
	)

	settle(&wg, &counts, func() (Counts, error) { return s.Counts(ctx) })
	settle(&wg, &revenue, func() (Revenue, error) { return s.Revenue(ctx) })
	settle(&wg, &todayOrders, func() (int64, error) { return s.TodayOrderCount(ctx) })
	settle(&wg, &lowStock, func() ([]StockItem, error) { return s.LowStock(ctx, s.opts.LowStockThreshold) })
	settle(&wg, &topProducts, func() ([]TopProduct, error) { return s.TopProducts(ctx, dashboardTopProducts) })
	settle(&wg, &recentOrders, func() ([]OrderSummary, error) { return s.RecentOrders(ctx, dashboardRecentOrders) })
	settle(&wg, &revenueByDay, func() ([]PeriodRevenue, error) { return s.RevenueByDay(ctx, dashboardWindowDays) })
	settle(&wg, &ordersByType, func() ([]TypeBreakdown, error) { return s.OrdersByType(ctx) })
	settle(&wg, &ordersByDay, func() ([]DayCount, error) { return s.OrdersByDay(ctx, dashboardWindowDays) })
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return DashboardSnapshot{}, fmt.Errorf("compose dashboard: %w", err)
	}
	if err := unreachable(counts.Err, revenue.Err, todayOrders.Err, lowStock.Err, topProducts.Err,
		recentOrders.Err, revenueByDay.Err, ordersByType.Err, ordersByDay.Err); err != nil {
		s.log.Error("dashboard compose failed, database unreachable", "err", err)
		return DashboardSnapshot{}, fmt.Errorf("%w: database unreachable: %w", ErrNotConfigured, err)
	}

	snap.Counts = pick(s, &snap, 0, "counts", counts, Counts{})
	snap.Revenue = pick(s, &snap, 1, "revenue", revenue, zeroRevenue())
	snap.TodayOrders = pick(s, &snap, 2, "todayOrders", todayOrders, 0)
	snap.LowStock = pick(s, &snap, 3, "lowStock", lowStock, []StockItem{})
	snap.TopProducts = pick(s, &snap, 4, "topProducts", topProducts, []TopProduct{})
	snap.RecentOrders = pick(s, &snap, 5, "recentOrders", recentOrders, []OrderSummary{})
	snap.RevenueByDay = pick(s, &snap, 6, "revenueByDay", revenueByDay, []PeriodRevenue{})
	snap.OrdersByType = pick(s, &snap, 7, "ordersByType", ordersByType, []TypeBreakdown{})
	snap.OrdersByDay = pick(s, &snap, 8, "ordersByDay", ordersByDay, []DayCount{})
	snap.GeneratedAt = s.opts.Now().UTC()

	if len(snap.Degraded) > 0 {
		s.log.Warn("dashboard composed with defaults", "degraded", snap.Degraded)
	}
	return snap, nil
}

// unreachable возвращает первую ошибку, если все ветки упали на соединении.
func unreachable(errs ...error) error {
	for _, err := range errs {
		if err == nil || !database.IsTransient(err) {
			return nil
		}
	}
	return errs[0]
}

// settle запускает ветку в отдельной горутине; паника ветки становится ее ошибкой.
func settle[T any](wg *sync.WaitGroup, out *Outcome[T], fn func() (T, error)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				out.Err = fmt.Errorf("panic: %v", r)
			}
		}()
		out.Value, out.Err = fn()
	}()
}

func pick[T any](s *Service, snap *DashboardSnapshot, branch int, metric string, o Outcome[T], def T) T {
	if !o.Degraded() {
		return o.Value
	}
	merr := &MetricError{Branch: branch, Metric: metric, Err: o.Err}
	s.log.Error("dashboard metric failed, using default", "branch", branch, "metric", metric, "err", merr)
	telemetry.DashboardDegraded.WithLabelValues(metric).Inc()
	snap.Degraded = append(snap.Degraded, metric)
	return def
}

func zeroRevenue() Revenue {
	return Revenue{
		Total:     decimal.Zero,
		Today:     decimal.Zero,
		ThisMonth: decimal.Zero,
		ByMonth:   []PeriodRevenue{},
	}
}
