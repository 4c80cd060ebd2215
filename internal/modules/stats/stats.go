// Package stats публикует движок агрегаций как модуль команд.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"whstats/internal/analytics"
	"whstats/internal/core"
	"whstats/internal/storage"
)

// SnapshotKind - вид снимков дашборда в хранилище истории.
const SnapshotKind = "dashboard"

type handler func(ctx context.Context, a args) (any, error)

// Module - команды статистики склада.
type Module struct {
	svc      *analytics.Service
	history  storage.Store
	handlers map[string]handler
}

// New создает модуль; history может быть nil, тогда команда history недоступна.
func New(svc *analytics.Service, history storage.Store) *Module {
	m := &Module{svc: svc, history: history}
	m.handlers = map[string]handler{
		"dashboard":         m.dashboard,
		"refresh":           m.refresh,
		"counts":            m.counts,
		"revenue":           m.revenue,
		"revenue-by-period": m.revenueByPeriod,
		"low-stock":         m.lowStock,
		"top-products":      m.topProducts,
		"recent-orders":     m.recentOrders,
		"orders-by-type":    m.ordersByType,
		"trends":            m.trends,
		"performance":       m.performance,
		"warehouses":        m.warehouses,
		"turnover":          m.turnover,
		"customers":         m.customers,
		"suppliers":         m.suppliers,
		"history":           m.historyList,
	}
	return m
}

func (m *Module) Name() string { return "stats" }

func (m *Module) Init(ctx context.Context) error {
	if m.svc == nil {
		return analytics.ErrNotConfigured
	}
	return nil
}

func (m *Module) Commands() []string {
	out := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Module) Execute(ctx context.Context, cmd string, raw []string) (core.Response, error) {
	h, ok := m.handlers[cmd]
	if !ok {
		err := fmt.Errorf("stats %s: %w", cmd, core.ErrUnknownCommand)
		return core.Fail("unknown_command", "unknown command", err), err
	}
	a, err := parseArgs(raw)
	if err != nil {
		return core.Fail("invalid_argument", "invalid arguments", err), err
	}
	data, err := h(ctx, a)
	if err != nil {
		code, msg := classify(err)
		return core.Fail(code, msg, err), err
	}
	return core.OK(data), nil
}

func classify(err error) (string, string) {
	switch {
	case errors.Is(err, analytics.ErrInvalidArgument), errors.Is(err, core.ErrInvalidArguments):
		return "invalid_argument", "invalid arguments"
	case errors.Is(err, analytics.ErrNotConfigured):
		return "not_configured", "statistics engine is not configured"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found", "no data"
	case errors.Is(err, context.DeadlineExceeded):
		return "request_timeout", "request timeout"
	default:
		return "query_failed", "failed to compute statistics"
	}
}

func (m *Module) dashboard(ctx context.Context, _ args) (any, error) {
	return m.svc.Dashboard(ctx)
}

func (m *Module) refresh(ctx context.Context, _ args) (any, error) {
	return m.svc.RefreshDashboard(ctx)
}

func (m *Module) counts(ctx context.Context, _ args) (any, error) {
	return m.svc.Counts(ctx)
}

func (m *Module) revenue(ctx context.Context, _ args) (any, error) {
	return m.svc.Revenue(ctx)
}

func (m *Module) revenueByPeriod(ctx context.Context, a args) (any, error) {
	start, err := a.date("start")
	if err != nil {
		return nil, err
	}
	end, err := a.date("end")
	if err != nil {
		return nil, err
	}
	return m.svc.RevenueByPeriod(ctx, analytics.PeriodParams{Period: a.text("period", ""), Start: start, End: end})
}

func (m *Module) lowStock(ctx context.Context, a args) (any, error) {
	threshold, err := a.integer("threshold", m.svc.LowStockThreshold())
	if err != nil {
		return nil, err
	}
	return m.svc.LowStock(ctx, threshold)
}

func (m *Module) topProducts(ctx context.Context, a args) (any, error) {
	n, err := a.integer("limit", 5)
	if err != nil {
		return nil, err
	}
	return m.svc.TopProducts(ctx, n)
}

func (m *Module) recentOrders(ctx context.Context, a args) (any, error) {
	n, err := a.integer("limit", 5)
	if err != nil {
		return nil, err
	}
	return m.svc.RecentOrders(ctx, n)
}

func (m *Module) ordersByType(ctx context.Context, _ args) (any, error) {
	return m.svc.OrdersByType(ctx)
}

func (m *Module) trends(ctx context.Context, a args) (any, error) {
	days, err := a.integer("days", 0)
	if err != nil {
		return nil, err
	}
	return m.svc.SalesTrends(ctx, analytics.TrendParams{Period: a.text("period", ""), Days: days})
}

func (m *Module) performance(ctx context.Context, a args) (any, error) {
	limit, err := a.integer("limit", 0)
	if err != nil {
		return nil, err
	}
	return m.svc.ProductPerformance(ctx, analytics.PerformanceParams{Limit: limit, SortBy: a.text("sort", "")})
}

func (m *Module) warehouses(ctx context.Context, _ args) (any, error) {
	return m.svc.WarehouseUtilization(ctx)
}

func (m *Module) turnover(ctx context.Context, a args) (any, error) {
	days, err := a.integer("days", 0)
	if err != nil {
		return nil, err
	}
	return m.svc.InventoryTurnover(ctx, analytics.WindowParams{Days: days})
}

func (m *Module) customers(ctx context.Context, a args) (any, error) {
	days, err := a.integer("days", 0)
	if err != nil {
		return nil, err
	}
	return m.svc.CustomerAnalytics(ctx, analytics.WindowParams{Days: days})
}

func (m *Module) suppliers(ctx context.Context, _ args) (any, error) {
	return m.svc.SupplierAnalytics(ctx)
}

// HistoryItem - элемент истории снимков.
type HistoryItem struct {
	ID       int64           `json:"id"`
	TS       time.Time       `json:"ts"`
	Degraded []string        `json:"degraded"`
	Snapshot json.RawMessage `json:"snapshot"`
}

func (m *Module) historyList(ctx context.Context, a args) (any, error) {
	if m.history == nil {
		return nil, fmt.Errorf("%w: history store", analytics.ErrNotConfigured)
	}
	limit, err := a.integer("limit", 10)
	if err != nil {
		return nil, err
	}
	recs, err := m.history.ListSnapshots(ctx, SnapshotKind, limit)
	if err != nil {
		return nil, err
	}
	items := make([]HistoryItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, HistoryItem{ID: rec.ID, TS: rec.TS, Degraded: rec.Degraded, Snapshot: rec.Payload})
	}
	return items, nil
}
