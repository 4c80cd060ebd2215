package analytics

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whstats/internal/cache"
	"whstats/internal/database"
	"whstats/internal/database/dbtest"
	"whstats/internal/schema"
)

var (
	day1 = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
)

// Маршруты dbtest по уникальным фрагментам SQL в Primary-написании.
const (
	routeCounts       = "(SELECT COUNT(*) FROM users)"
	routeRevenue      = "FILTER (WHERE p.payment_date::date"
	routeByMonth      = "INTERVAL '11 months'"
	routeTodayOrders  = "o.created_at::date = CURRENT_DATE"
	routeLowStock     = "HAVING COALESCE"
	routeTopProducts  = "ORDER BY sold DESC"
	routeRecentOrders = "ORDER BY o.created_at DESC"
	routeRevenueByDay = "p.payment_date >= CURRENT_DATE"
	routeOrdersByType = "AS order_type"
	routeOrdersByDay  = "AS day"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(q database.Querier, mode schema.Mode) *Service {
	log := discardLogger()
	exec := schema.NewExecutor(q, schema.FixedResolver(mode, schema.NewDialect(nil)), log)
	return New(exec, cache.New(cache.NewMemoryStore(), log), log, Options{
		Now: func() time.Time { return day2 },
	})
}

// dashboardRoutes - успешные ответы всех веток дашборда.
func dashboardRoutes() map[string]dbtest.Responder {
	return map[string]dbtest.Responder{
		routeCounts:      dbtest.Return([]any{int64(3), int64(12), int64(40), int64(4), int64(2)}),
		routeRevenue:     dbtest.Return([]any{"1500.50", "20.00", "300.25"}),
		routeByMonth:     dbtest.Return([]any{"2024-02", "1200.25", int64(9)}, []any{"2024-03", "300.25", int64(3)}),
		routeTodayOrders: dbtest.Return([]any{int64(2)}),
		routeLowStock:    dbtest.Return([]any{int64(7), "Bolt", "B-7", int64(0)}, []any{int64(3), "Nut", "N-3", int64(4)}),
		routeTopProducts: dbtest.Return([]any{int64(1), "Widget", int64(50), "500.00"}),
		routeRecentOrders: dbtest.Return(
			[]any{int64(41), "sale", "ACME", "pending", "99.90", day2},
			[]any{int64(40), "purchase", nil, "done", "10.00", day1},
		),
		routeRevenueByDay: dbtest.Return([]any{"2024-03-11", "20.00", int64(1)}),
		routeOrdersByType: dbtest.Return([]any{"sale", int64(30), "1400.00"}, []any{"purchase", int64(10), "100.50"}),
		routeOrdersByDay:  dbtest.Return([]any{"2024-03-10", int64(4)}, []any{"2024-03-11", int64(2)}),
	}
}

func querierWith(routes map[string]dbtest.Responder) *dbtest.Querier {
	q := &dbtest.Querier{}
	for match, fn := range routes {
		q.On(match, fn)
	}
	return q
}

func TestDashboardComposesAllBranches(t *testing.T) {
	svc := newService(querierWith(dashboardRoutes()), schema.Primary)

	snap, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Counts{Users: 3, Products: 12, Orders: 40, Suppliers: 4, Warehouses: 2}, snap.Counts)
	assert.Equal(t, "1500.5", snap.Revenue.Total.String())
	assert.Equal(t, "300.25", snap.Revenue.ThisMonth.String())
	require.Len(t, snap.Revenue.ByMonth, 2)
	assert.Equal(t, "2024-02", snap.Revenue.ByMonth[0].Period)
	assert.Equal(t, int64(2), snap.TodayOrders)
	require.Len(t, snap.LowStock, 2)
	assert.Equal(t, int64(7), snap.LowStock[0].ProductID)
	require.Len(t, snap.RecentOrders, 2)
	assert.Equal(t, int64(41), snap.RecentOrders[0].ID)
	assert.Equal(t, "", snap.RecentOrders[1].CustomerName)
	assert.Len(t, snap.TopProducts, 1)
	assert.Len(t, snap.RevenueByDay, 1)
	assert.Len(t, snap.OrdersByType, 2)
	assert.Len(t, snap.OrdersByDay, 2)
	assert.Empty(t, snap.Degraded)
	assert.Equal(t, day2, snap.GeneratedAt)
}

func TestDashboardToleratesSingleBranchFailure(t *testing.T) {
	cases := []struct {
		route  string
		metric string
		check  func(t *testing.T, snap DashboardSnapshot)
	}{
		{routeCounts, "counts", func(t *testing.T, s DashboardSnapshot) { assert.Equal(t, Counts{}, s.Counts) }},
		{routeRevenue, "revenue", func(t *testing.T, s DashboardSnapshot) {
			assert.True(t, s.Revenue.Total.IsZero())
			assert.True(t, s.Revenue.Today.IsZero())
			assert.True(t, s.Revenue.ThisMonth.IsZero())
			assert.NotNil(t, s.Revenue.ByMonth)
			assert.Empty(t, s.Revenue.ByMonth)
		}},
		{routeByMonth, "revenue", func(t *testing.T, s DashboardSnapshot) { assert.Empty(t, s.Revenue.ByMonth) }},
		{routeTodayOrders, "todayOrders", func(t *testing.T, s DashboardSnapshot) { assert.Zero(t, s.TodayOrders) }},
		{routeLowStock, "lowStock", func(t *testing.T, s DashboardSnapshot) { assertEmptyList(t, s.LowStock) }},
		{routeTopProducts, "topProducts", func(t *testing.T, s DashboardSnapshot) { assertEmptyList(t, s.TopProducts) }},
		{routeRecentOrders, "recentOrders", func(t *testing.T, s DashboardSnapshot) { assertEmptyList(t, s.RecentOrders) }},
		{routeRevenueByDay, "revenueByDay", func(t *testing.T, s DashboardSnapshot) { assertEmptyList(t, s.RevenueByDay) }},
		{routeOrdersByType, "ordersByType", func(t *testing.T, s DashboardSnapshot) { assertEmptyList(t, s.OrdersByType) }},
		{routeOrdersByDay, "ordersByDay", func(t *testing.T, s DashboardSnapshot) { assertEmptyList(t, s.OrdersByDay) }},
	}

	for _, tc := range cases {
		t.Run(tc.route, func(t *testing.T) {
			routes := dashboardRoutes()
			routes[tc.route] = dbtest.Fail(errors.New("boom"))
			svc := newService(querierWith(routes), schema.Primary)

			snap, err := svc.Dashboard(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{tc.metric}, snap.Degraded)
			tc.check(t, snap)

			// Остальные ветки заполнены настоящими значениями.
			if tc.metric != "counts" {
				assert.Equal(t, int64(12), snap.Counts.Products)
			}
			if tc.metric != "ordersByDay" {
				assert.Len(t, snap.OrdersByDay, 2)
			}
			if tc.metric != "lowStock" {
				assert.Len(t, snap.LowStock, 2)
			}
		})
	}
}

func assertEmptyList[T any](t *testing.T, list []T) {
	t.Helper()
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestDashboardRecoversBranchPanic(t *testing.T) {
	routes := dashboardRoutes()
	routes[routeTopProducts] = func(string, []any) (database.Rows, error) { panic("driver bug") }
	svc := newService(querierWith(routes), schema.Primary)

	snap, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"topProducts"}, snap.Degraded)
	assert.Equal(t, int64(40), snap.Counts.Orders)
}

func TestDashboardAllBranchesFailWithQueryErrors(t *testing.T) {
	q := &dbtest.Querier{}
	q.On("", dbtest.Fail(errors.New(`relation "orders" is locked`)))
	svc := newService(q, schema.Primary)

	snap, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Degraded, 9)
	assert.Equal(t, Counts{}, snap.Counts)
}

func TestDashboardUnreachableDatabaseIsNotCached(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	routes := dashboardRoutes()
	for match, fn := range routes {
		fn := fn
		routes[match] = func(query string, args []any) (database.Rows, error) {
			if down.Load() {
				return nil, driver.ErrBadConn
			}
			return fn(query, args)
		}
	}
	svc := newService(querierWith(routes), schema.Primary)

	_, err := svc.Dashboard(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, err, driver.ErrBadConn)

	down.Store(false)
	snap, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Degraded)
	assert.Equal(t, int64(40), snap.Counts.Orders)
}

func TestDashboardCancelledCallerDoesNotPoisonCache(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var computed atomic.Int32
	routes := dashboardRoutes()
	inner := routes[routeCounts]
	routes[routeCounts] = func(query string, args []any) (database.Rows, error) {
		computed.Add(1)
		close(started)
		<-release
		return inner(query, args)
	}
	svc := newService(querierWith(routes), schema.Primary)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Dashboard(ctx)
		errCh <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	close(release)

	snap, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Degraded)
	assert.Equal(t, int64(40), snap.Counts.Orders)
	assert.Equal(t, int32(1), computed.Load())
}

func TestDashboardComputeTimeoutIsAnError(t *testing.T) {
	routes := dashboardRoutes()
	routes[routeCounts] = func(query string, args []any) (database.Rows, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, context.DeadlineExceeded
	}
	log := discardLogger()
	exec := schema.NewExecutor(querierWith(routes), schema.FixedResolver(schema.Primary, schema.NewDialect(nil)), log)
	svc := New(exec, cache.New(cache.NewMemoryStore(), log), log, Options{ComputeTimeout: 10 * time.Millisecond})

	_, err := svc.Dashboard(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefreshCancelledKeepsPreviousSnapshot(t *testing.T) {
	svc := newService(querierWith(dashboardRoutes()), schema.Primary)
	first, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.RefreshDashboard(ctx)
	require.ErrorIs(t, err, context.Canceled)

	snap, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Degraded)
	assert.Equal(t, first.Counts, snap.Counts)
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	var down atomic.Bool
	var computed atomic.Int32
	routes := dashboardRoutes()
	for match, fn := range routes {
		fn := fn
		routes[match] = func(query string, args []any) (database.Rows, error) {
			if down.Load() {
				return nil, driver.ErrBadConn
			}
			return fn(query, args)
		}
	}
	inner := routes[routeCounts]
	routes[routeCounts] = func(query string, args []any) (database.Rows, error) {
		computed.Add(1)
		return inner(query, args)
	}
	svc := newService(querierWith(routes), schema.Primary)
	_, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	down.Store(true)
	_, err = svc.RefreshDashboard(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)

	snap, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), snap.Counts.Orders)
	assert.Equal(t, int32(2), computed.Load(), "the cached snapshot is served without recompute")
}

func TestDashboardServedFromCache(t *testing.T) {
	var counts atomic.Int32
	routes := dashboardRoutes()
	inner := routes[routeCounts]
	routes[routeCounts] = func(query string, args []any) (database.Rows, error) {
		counts.Add(1)
		return inner(query, args)
	}
	svc := newService(querierWith(routes), schema.Primary)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	second, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), counts.Load())
	assert.Equal(t, first.Counts, second.Counts)

	_, err = svc.RefreshDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), counts.Load())
}

func TestDashboardWithoutCacheIsConfigurationError(t *testing.T) {
	log := discardLogger()
	exec := schema.NewExecutor(&dbtest.Querier{}, schema.FixedResolver(schema.Primary, schema.NewDialect(nil)), log)
	svc := New(exec, nil, log, Options{})

	_, err := svc.Dashboard(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	var nilSvc *Service
	_, err = nilSvc.Counts(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLowStockIncludesZeroAndCapsAtTwenty(t *testing.T) {
	rows := make([][]any, 0, 26)
	for i := 25; i >= 1; i-- {
		rows = append(rows, []any{int64(i), fmt.Sprintf("P%d", i), "", int64(i % 6)})
	}
	// Строка выше порога отсеивается.
	rows = append(rows, []any{int64(99), "Overstock", "", int64(11)})

	q := (&dbtest.Querier{}).On(routeLowStock, dbtest.Return(rows...))
	svc := newService(q, schema.Primary)

	items, err := svc.LowStock(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 20)

	assert.Equal(t, int64(0), items[0].Stock)
	assert.Equal(t, int64(6), items[0].ProductID, "ties broken by product id")
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		assert.True(t, prev.Stock < cur.Stock || (prev.Stock == cur.Stock && prev.ProductID < cur.ProductID))
		assert.LessOrEqual(t, cur.Stock, int64(10))
	}

	calls := q.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Query, "LEFT JOIN inventory")
	assert.Equal(t, []any{10, lowStockLimit}, calls[0].Args)
}

func TestLowStockRejectsNegativeThreshold(t *testing.T) {
	q := &dbtest.Querier{}
	svc := newService(q, schema.Primary)

	_, err := svc.LowStock(context.Background(), -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, q.Calls())
}

func TestInventoryTurnoverRate(t *testing.T) {
	q := (&dbtest.Querier{}).On("WITH stock AS", dbtest.Return(
		[]any{int64(1), "Idle", int64(5), int64(0)},
		[]any{int64(2), "Fast", int64(25), int64(10)},
		[]any{int64(3), "Slow", int64(1), int64(4)},
		[]any{int64(4), "Ghost", int64(0), int64(0)},
	))
	svc := newService(q, schema.Primary)

	items, err := svc.InventoryTurnover(context.Background(), WindowParams{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, int64(2), items[0].ProductID)
	assert.InDelta(t, 2.5, items[0].TurnoverRate, 1e-9)
	assert.Equal(t, int64(3), items[1].ProductID)
	assert.InDelta(t, 0.25, items[1].TurnoverRate, 1e-9)
	assert.Equal(t, int64(1), items[2].ProductID)
	assert.Zero(t, items[2].TurnoverRate)

	assert.Equal(t, []any{DefaultWindowDays, analyticsTopLimit}, q.Calls()[0].Args)
}

func TestRevenueFiltersCompletedSales(t *testing.T) {
	routes := dashboardRoutes()
	q := querierWith(map[string]dbtest.Responder{
		routeRevenue: routes[routeRevenue],
		routeByMonth: routes[routeByMonth],
	})
	svc := newService(q, schema.Primary)

	rev, err := svc.Revenue(context.Background())
	require.NoError(t, err)
	assert.True(t, rev.Today.Equal(decimal.RequireFromString("20")))

	calls := q.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Contains(t, c.Query, "LOWER(p.payment_status) = 'completed'")
		assert.Contains(t, c.Query, "LOWER(o.order_type) IN ('sale', 'sell')")
		assert.Contains(t, c.Query, "JOIN orders o ON o.id = p.order_id")
	}
}

func TestQueriesRenderInSecondaryMode(t *testing.T) {
	q := (&dbtest.Querier{}).On(`FROM "Payments" p`, dbtest.Return([]any{"2024-W10", "10.00", int64(1)}))
	svc := newService(q, schema.Secondary)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	list, err := svc.RevenueByPeriod(context.Background(), PeriodParams{Period: "week", Start: &start})
	require.NoError(t, err)
	require.Len(t, list, 1)

	c := q.Calls()[0]
	assert.Contains(t, c.Query, `LOWER(p."PaymentStatus")`)
	assert.Contains(t, c.Query, `JOIN "Orders" o ON o."Id" = p."OrderId"`)
	assert.NotContains(t, c.Query, "{")
	assert.Equal(t, []any{"week", `IYYY-"W"IW`, "2024-03-01", nil}, c.Args)
}

func TestSingleMetricErrorsPropagateUnchanged(t *testing.T) {
	sentinel := errors.New("too many connections")
	q := (&dbtest.Querier{}).On("", dbtest.Fail(sentinel))
	svc := newService(q, schema.Primary)

	_, err := svc.SalesTrends(context.Background(), TrendParams{})
	assert.Same(t, sentinel, err)
	_, err = svc.SupplierAnalytics(context.Background())
	assert.Same(t, sentinel, err)
}

func TestParameterValidation(t *testing.T) {
	q := &dbtest.Querier{}
	svc := newService(q, schema.Primary)
	ctx := context.Background()

	_, err := svc.SalesTrends(ctx, TrendParams{Period: "hour"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.SalesTrends(ctx, TrendParams{Days: -3})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.ProductPerformance(ctx, PerformanceParams{SortBy: "name; DROP TABLE orders"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.ProductPerformance(ctx, PerformanceParams{Limit: 1000})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	start := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err = svc.RevenueByPeriod(ctx, PeriodParams{Start: &start, End: &end})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, q.Calls())
}

func TestSalesTrendsArguments(t *testing.T) {
	q := (&dbtest.Querier{}).On("date_trunc($1::text, o.created_at)", dbtest.Return(
		[]any{"2024-03", int64(3), "100.00", "33.333333"},
	))
	svc := newService(q, schema.Primary)

	list, err := svc.SalesTrends(context.Background(), TrendParams{Period: "Month", Days: 90})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "33.33", list[0].AvgOrderValue.String())
	assert.Equal(t, []any{"month", "YYYY-MM", 90}, q.Calls()[0].Args)
}

func TestProductPerformanceSortsAndKeepsUnsold(t *testing.T) {
	q := (&dbtest.Querier{}).On("LEFT JOIN (", dbtest.Return(
		[]any{int64(2), "B", int64(5), "50.00", int64(2), "10.00"},
		[]any{int64(1), "A", int64(5), "75.00", int64(1), "15.00"},
		[]any{int64(3), "Unsold", int64(0), "0", int64(0), "0"},
	))
	svc := newService(q, schema.Primary)

	list, err := svc.ProductPerformance(context.Background(), PerformanceParams{SortBy: "quantity"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{list[0].ProductID, list[1].ProductID, list[2].ProductID})

	c := q.Calls()[0]
	assert.Contains(t, c.Query, "ORDER BY total_sold DESC, pr.id ASC")
	assert.Equal(t, []any{DefaultPerfLimit}, c.Args)
}

func TestCustomerAnalyticsSkipsBlankNames(t *testing.T) {
	q := (&dbtest.Querier{}).On("TRIM(o.customer_name)", dbtest.Return(
		[]any{"Beta", int64(1), "50.00", "50.00", day1, day1},
		[]any{"  ", int64(4), "999.00", "249.75", day1, day2},
		[]any{"Alpha", int64(2), "50.00", "25.00", day1, day2},
	))
	svc := newService(q, schema.Primary)

	list, err := svc.CustomerAnalytics(context.Background(), WindowParams{Days: 7})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].CustomerName)
	assert.Equal(t, "Beta", list[1].CustomerName)
	assert.True(t, strings.HasPrefix(q.Calls()[0].Query, "SELECT o.customer_name"))
}

func TestSupplierAnalyticsOrdering(t *testing.T) {
	q := (&dbtest.Querier{}).On("FROM suppliers s", dbtest.Return(
		[]any{int64(1), "Small", int64(1), int64(10), "100.00"},
		[]any{int64(2), "Big", int64(3), int64(5), "10.00"},
		[]any{int64(3), "Rich", int64(3), int64(5), "90.00"},
	))
	svc := newService(q, schema.Primary)

	list, err := svc.SupplierAnalytics(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{list[0].SupplierID, list[1].SupplierID, list[2].SupplierID})
}
