package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Counts - количество строк в таблицах сущностей.
type Counts struct {
	Users      int64 `json:"users"`
	Products   int64 `json:"products"`
	Orders     int64 `json:"orders"`
	Suppliers  int64 `json:"suppliers"`
	Warehouses int64 `json:"warehouses"`
}

// PeriodRevenue - выручка за период; периоды без платежей не выдаются.
type PeriodRevenue struct {
	Period  string          `json:"period"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int64           `json:"orders"`
}

// Revenue - выручка по завершенным платежам продаж.
type Revenue struct {
	Total     decimal.Decimal `json:"total"`
	Today     decimal.Decimal `json:"today"`
	ThisMonth decimal.Decimal `json:"thisMonth"`
	ByMonth   []PeriodRevenue `json:"byMonth"`
}

type StockItem struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Stock     int64  `json:"stock"`
}

type TopProduct struct {
	ProductID    int64           `json:"productId"`
	Name         string          `json:"name"`
	QuantitySold int64           `json:"quantitySold"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type OrderSummary struct {
	ID           int64           `json:"id"`
	OrderType    string          `json:"orderType"`
	CustomerName string          `json:"customerName"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type TypeBreakdown struct {
	OrderType string          `json:"orderType"`
	Orders    int64           `json:"orders"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type DayCount struct {
	Day    string `json:"day"`
	Orders int64  `json:"orders"`
}

// DashboardSnapshot кэшируется и заменяется только целиком.
// Degraded перечисляет метрики, подмененные значением по умолчанию.
type DashboardSnapshot struct {
	Counts       Counts          `json:"counts"`
	Revenue      Revenue         `json:"revenue"`
	TodayOrders  int64           `json:"todayOrders"`
	LowStock     []StockItem     `json:"lowStock"`
	TopProducts  []TopProduct    `json:"topProducts"`
	RecentOrders []OrderSummary  `json:"recentOrders"`
	RevenueByDay []PeriodRevenue `json:"revenueByDay"`
	OrdersByType []TypeBreakdown `json:"ordersByType"`
	OrdersByDay  []DayCount      `json:"ordersByDay"`
	Degraded     []string        `json:"degraded,omitempty"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

type TrendBucket struct {
	Period        string          `json:"period"`
	Orders        int64           `json:"orders"`
	Revenue       decimal.Decimal `json:"revenue"`
	AvgOrderValue decimal.Decimal `json:"avgOrderValue"`
}

type ProductPerformance struct {
	ProductID    int64           `json:"productId"`
	Name         string          `json:"name"`
	TotalSold    int64           `json:"totalSold"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	OrderCount   int64           `json:"orderCount"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
}

type WarehouseUtilization struct {
	WarehouseID  int64           `json:"warehouseId"`
	Name         string          `json:"name"`
	Location     string          `json:"location"`
	ProductCount int64           `json:"productCount"`
	TotalStock   int64           `json:"totalStock"`
	StockValue   decimal.Decimal `json:"stockValue"`
}

type TurnoverItem struct {
	ProductID    int64   `json:"productId"`
	Name         string  `json:"name"`
	SoldQuantity int64   `json:"soldQuantity"`
	CurrentStock int64   `json:"currentStock"`
	TurnoverRate float64 `json:"turnoverRate"`
}

type CustomerStats struct {
	CustomerName  string          `json:"customerName"`
	Orders        int64           `json:"orders"`
	TotalSpent    decimal.Decimal `json:"totalSpent"`
	AvgOrderValue decimal.Decimal `json:"avgOrderValue"`
	FirstOrder    time.Time       `json:"firstOrder"`
	LastOrder     time.Time       `json:"lastOrder"`
}

type SupplierStats struct {
	SupplierID   int64           `json:"supplierId"`
	Name         string          `json:"name"`
	ProductCount int64           `json:"productCount"`
	TotalStock   int64           `json:"totalStock"`
	StockValue   decimal.Decimal `json:"stockValue"`
}
