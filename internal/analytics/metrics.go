package analytics

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"whstats/internal/database"
	"whstats/internal/schema"
)

// Counts возвращает количество пользователей, товаров, заказов, поставщиков и складов.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	return one(ctx, s, "counts", countsQuery, func(r database.Rows) (Counts, error) {
		var c Counts
		err := r.Scan(&c.Users, &c.Products, &c.Orders, &c.Suppliers, &c.Warehouses)
		return c, err
	})
}

// Revenue возвращает итоговую выручку, выручку за сегодня и текущий месяц,
// а также помесячную разбивку за 12 месяцев.
func (s *Service) Revenue(ctx context.Context) (Revenue, error) {
	rev, err := one(ctx, s, "revenue", revenueQuery, func(r database.Rows) (Revenue, error) {
		var v Revenue
		err := r.Scan(&v.Total, &v.Today, &v.ThisMonth)
		return v, err
	})
	if err != nil {
		return Revenue{}, err
	}
	byMonth, err := collect(ctx, s, "revenue_by_month", revenueByMonthQuery, scanPeriodRevenue)
	if err != nil {
		return Revenue{}, err
	}
	rev.ByMonth = byMonth
	return rev, nil
}

// TodayOrderCount - число заказов, созданных в текущую дату базы.
func (s *Service) TodayOrderCount(ctx context.Context) (int64, error) {
	return one(ctx, s, "today_orders", todayOrdersQuery, func(r database.Rows) (int64, error) {
		var n int64
		err := r.Scan(&n)
		return n, err
	})
}

// LowStock возвращает до 20 товаров с суммарным остатком не выше threshold,
// включая товары без складских записей.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]StockItem, error) {
	if err := check(thresholdParams{Threshold: threshold}); err != nil {
		return nil, err
	}
	items, err := collect(ctx, s, "low_stock", lowStockQuery, func(r database.Rows) (StockItem, error) {
		var it StockItem
		err := r.Scan(&it.ProductID, &it.Name, &it.SKU, &it.Stock)
		return it, err
	}, threshold, lowStockLimit)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.Stock <= int64(threshold) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > lowStockLimit {
		out = out[:lowStockLimit]
	}
	return out, nil
}

// TopProducts - n самых продаваемых товаров по количеству за все время.
func (s *Service) TopProducts(ctx context.Context, n int) ([]TopProduct, error) {
	if err := check(limitParams{Limit: n}); err != nil {
		return nil, err
	}
	list, err := collect(ctx, s, "top_products", topProductsQuery, func(r database.Rows) (TopProduct, error) {
		var p TopProduct
		err := r.Scan(&p.ProductID, &p.Name, &p.QuantitySold, &p.Revenue)
		return p, err
	}, n)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].QuantitySold != list[j].QuantitySold {
			return list[i].QuantitySold > list[j].QuantitySold
		}
		return list[i].ProductID < list[j].ProductID
	})
	return capList(list, n), nil
}

// RecentOrders - n последних заказов, новые первыми.
func (s *Service) RecentOrders(ctx context.Context, n int) ([]OrderSummary, error) {
	if err := check(limitParams{Limit: n}); err != nil {
		return nil, err
	}
	list, err := collect(ctx, s, "recent_orders", recentOrdersQuery, func(r database.Rows) (OrderSummary, error) {
		var o OrderSummary
		var customer, status sql.NullString
		err := r.Scan(&o.ID, &o.OrderType, &customer, &status, &o.TotalAmount, &o.CreatedAt)
		o.CustomerName = customer.String
		o.Status = status.String
		return o, err
	}, n)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return capList(list, n), nil
}

// RevenueByDay - выручка по дням за последние days дней (включая сегодня).
// Дни без платежей не выдаются.
func (s *Service) RevenueByDay(ctx context.Context, days int) ([]PeriodRevenue, error) {
	if err := check(WindowParams{Days: days}); err != nil {
		return nil, err
	}
	return collect(ctx, s, "revenue_by_day", revenueByDayQuery, scanPeriodRevenue, days)
}

// OrdersByType - число заказов и их сумма по типу заказа.
func (s *Service) OrdersByType(ctx context.Context) ([]TypeBreakdown, error) {
	return collect(ctx, s, "orders_by_type", ordersByTypeQuery, func(r database.Rows) (TypeBreakdown, error) {
		var t TypeBreakdown
		err := r.Scan(&t.OrderType, &t.Orders, &t.Revenue)
		return t, err
	})
}

// OrdersByDay - число заказов по календарным дням окна.
func (s *Service) OrdersByDay(ctx context.Context, days int) ([]DayCount, error) {
	if err := check(WindowParams{Days: days}); err != nil {
		return nil, err
	}
	return collect(ctx, s, "orders_by_day", ordersByDayQuery, func(r database.Rows) (DayCount, error) {
		var d DayCount
		err := r.Scan(&d.Day, &d.Orders)
		return d, err
	}, days)
}

// SalesTrends группирует продажи за последние дни по дню, неделе или месяцу.
func (s *Service) SalesTrends(ctx context.Context, p TrendParams) ([]TrendBucket, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	f := periodFormats[p.Period]
	return collect(ctx, s, "sales_trends", salesTrendsQuery, func(r database.Rows) (TrendBucket, error) {
		var b TrendBucket
		err := r.Scan(&b.Period, &b.Orders, &b.Revenue, &b.AvgOrderValue)
		b.AvgOrderValue = b.AvgOrderValue.Round(2)
		return b, err
	}, f[0], f[1], p.Days)
}

// ProductPerformance - показатели продаж по товарам, включая непродававшиеся.
func (s *Service) ProductPerformance(ctx context.Context, p PerformanceParams) ([]ProductPerformance, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	// Ключ сортировки берется только из perfOrder.
	q := productPerformanceQuery + schema.Query("\nORDER BY "+perfOrder[p.SortBy]+" DESC, pr.{id} ASC\nLIMIT $1")
	list, err := collect(ctx, s, "product_performance", q, func(r database.Rows) (ProductPerformance, error) {
		var pp ProductPerformance
		err := r.Scan(&pp.ProductID, &pp.Name, &pp.TotalSold, &pp.TotalRevenue, &pp.OrderCount, &pp.AvgPrice)
		pp.AvgPrice = pp.AvgPrice.Round(2)
		return pp, err
	}, p.Limit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		if c := comparePerformance(list[i], list[j], p.SortBy); c != 0 {
			return c > 0
		}
		return list[i].ProductID < list[j].ProductID
	})
	return capList(list, p.Limit), nil
}

func comparePerformance(a, b ProductPerformance, sortBy string) int {
	switch sortBy {
	case "quantity":
		return cmpInt(a.TotalSold, b.TotalSold)
	case "orders":
		return cmpInt(a.OrderCount, b.OrderCount)
	default:
		return a.TotalRevenue.Cmp(b.TotalRevenue)
	}
}

// WarehouseUtilization - наполненность каждого склада.
func (s *Service) WarehouseUtilization(ctx context.Context) ([]WarehouseUtilization, error) {
	return collect(ctx, s, "warehouse_utilization", warehouseUtilizationQuery, func(r database.Rows) (WarehouseUtilization, error) {
		var w WarehouseUtilization
		err := r.Scan(&w.WarehouseID, &w.Name, &w.Location, &w.ProductCount, &w.TotalStock, &w.StockValue)
		return w, err
	})
}

// RevenueByPeriod - выручка с группировкой по периоду и необязательными
// включительными границами дат.
func (s *Service) RevenueByPeriod(ctx context.Context, p PeriodParams) ([]PeriodRevenue, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	f := periodFormats[p.Period]
	return collect(ctx, s, "revenue_by_period", revenueByPeriodQuery, scanPeriodRevenue,
		f[0], f[1], dateArg(p.Start), dateArg(p.End))
}

// InventoryTurnover - оборачиваемость товаров за окно: продано / текущий остаток,
// 0 при нулевом остатке. Выдаются 20 товаров с наибольшим коэффициентом.
func (s *Service) InventoryTurnover(ctx context.Context, p WindowParams) ([]TurnoverItem, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	list, err := collect(ctx, s, "inventory_turnover", inventoryTurnoverQuery, func(r database.Rows) (TurnoverItem, error) {
		var t TurnoverItem
		err := r.Scan(&t.ProductID, &t.Name, &t.SoldQuantity, &t.CurrentStock)
		return t, err
	}, p.Days, analyticsTopLimit)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, t := range list {
		if t.SoldQuantity == 0 && t.CurrentStock == 0 {
			continue
		}
		t.TurnoverRate = turnoverRate(t.SoldQuantity, t.CurrentStock)
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TurnoverRate != out[j].TurnoverRate {
			return out[i].TurnoverRate > out[j].TurnoverRate
		}
		return out[i].ProductID < out[j].ProductID
	})
	return capList(out, analyticsTopLimit), nil
}

func turnoverRate(sold, stock int64) float64 {
	if stock <= 0 {
		return 0
	}
	rate, _ := decimal.NewFromInt(sold).DivRound(decimal.NewFromInt(stock), 4).Float64()
	return rate
}

// CustomerAnalytics - 20 покупателей с наибольшей суммой заказов за окно.
func (s *Service) CustomerAnalytics(ctx context.Context, p WindowParams) ([]CustomerStats, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	list, err := collect(ctx, s, "customer_analytics", customerAnalyticsQuery, func(r database.Rows) (CustomerStats, error) {
		var c CustomerStats
		err := r.Scan(&c.CustomerName, &c.Orders, &c.TotalSpent, &c.AvgOrderValue, &c.FirstOrder, &c.LastOrder)
		c.AvgOrderValue = c.AvgOrderValue.Round(2)
		return c, err
	}, p.Days, analyticsTopLimit)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, c := range list {
		if strings.TrimSpace(c.CustomerName) != "" {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].TotalSpent.Cmp(out[j].TotalSpent); c != 0 {
			return c > 0
		}
		return out[i].CustomerName < out[j].CustomerName
	})
	return capList(out, analyticsTopLimit), nil
}

// SupplierAnalytics - ассортимент и складская стоимость по поставщикам.
func (s *Service) SupplierAnalytics(ctx context.Context) ([]SupplierStats, error) {
	list, err := collect(ctx, s, "supplier_analytics", supplierAnalyticsQuery, func(r database.Rows) (SupplierStats, error) {
		var st SupplierStats
		err := r.Scan(&st.SupplierID, &st.Name, &st.ProductCount, &st.TotalStock, &st.StockValue)
		return st, err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].ProductCount != list[j].ProductCount {
			return list[i].ProductCount > list[j].ProductCount
		}
		if c := list[i].StockValue.Cmp(list[j].StockValue); c != 0 {
			return c > 0
		}
		return list[i].SupplierID < list[j].SupplierID
	})
	return list, nil
}

func scanPeriodRevenue(r database.Rows) (PeriodRevenue, error) {
	var p PeriodRevenue
	err := r.Scan(&p.Period, &p.Revenue, &p.Orders)
	return p, err
}

func capList[T any](list []T, n int) []T {
	if n >= 0 && len(list) > n {
		return list[:n]
	}
	return list
}

func cmpInt(a, b int64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}
