package analytics

import "whstats/internal/schema"

// Логическая схема (Primary-написание):
//   users(id), suppliers(id, name), warehouses(id, name, location),
//   products(id, name, sku, unit_price, supplier_id),
//   inventory(product_id, warehouse_id, quantity),
//   orders(id, order_type, customer_name, total_amount, status, created_at),
//   order_details(order_id, product_id, quantity, unit_price),
//   payments(id, order_id, amount, payment_status, payment_date).
// "Сегодня" и "этот месяц" считаются по CURRENT_DATE базы.

const saleFilter = `LOWER(p.{payment_status}) = 'completed'
  AND LOWER(o.{order_type}) IN ('sale', 'sell')`

const (
	countsQuery schema.Query = `SELECT
  (SELECT COUNT(*) FROM {users}),
  (SELECT COUNT(*) FROM {products}),
  (SELECT COUNT(*) FROM {orders}),
  (SELECT COUNT(*) FROM {suppliers}),
  (SELECT COUNT(*) FROM {warehouses})`

	revenueQuery schema.Query = `SELECT
  COALESCE(SUM(p.{amount}), 0),
  COALESCE(SUM(p.{amount}) FILTER (WHERE p.{payment_date}::date = CURRENT_DATE), 0),
  COALESCE(SUM(p.{amount}) FILTER (WHERE date_trunc('month', p.{payment_date}) = date_trunc('month', CURRENT_DATE)), 0)
FROM {payments} p
JOIN {orders} o ON o.{id} = p.{order_id}
WHERE ` + saleFilter

	revenueByMonthQuery schema.Query = `SELECT
  to_char(date_trunc('month', p.{payment_date}), 'YYYY-MM') AS period,
  COALESCE(SUM(p.{amount}), 0),
  COUNT(DISTINCT o.{id})
FROM {payments} p
JOIN {orders} o ON o.{id} = p.{order_id}
WHERE ` + saleFilter + `
  AND p.{payment_date} >= date_trunc('month', CURRENT_DATE) - INTERVAL '11 months'
GROUP BY 1
ORDER BY 1`

	revenueByDayQuery schema.Query = `SELECT
  to_char(p.{payment_date}::date, 'YYYY-MM-DD') AS period,
  COALESCE(SUM(p.{amount}), 0),
  COUNT(DISTINCT o.{id})
FROM {payments} p
JOIN {orders} o ON o.{id} = p.{order_id}
WHERE ` + saleFilter + `
  AND p.{payment_date} >= CURRENT_DATE - ($1::int - 1)
GROUP BY 1
ORDER BY 1`

	revenueByPeriodQuery schema.Query = `SELECT
  to_char(date_trunc($1::text, p.{payment_date}), $2::text) AS period,
  COALESCE(SUM(p.{amount}), 0),
  COUNT(DISTINCT o.{id})
FROM {payments} p
JOIN {orders} o ON o.{id} = p.{order_id}
WHERE ` + saleFilter + `
  AND ($3::date IS NULL OR p.{payment_date}::date >= $3::date)
  AND ($4::date IS NULL OR p.{payment_date}::date <= $4::date)
GROUP BY 1
ORDER BY 1`

	todayOrdersQuery schema.Query = `SELECT COUNT(*) FROM {orders} o WHERE o.{created_at}::date = CURRENT_DATE`

	lowStockQuery schema.Query = `SELECT pr.{id}, pr.{name}, COALESCE(pr.{sku}, ''), COALESCE(SUM(i.{quantity}), 0) AS stock
FROM {products} pr
LEFT JOIN {inventory} i ON i.{product_id} = pr.{id}
GROUP BY pr.{id}, pr.{name}, pr.{sku}
HAVING COALESCE(SUM(i.{quantity}), 0) <= $1
ORDER BY stock ASC, pr.{id} ASC
LIMIT $2`

	topProductsQuery schema.Query = `SELECT pr.{id}, pr.{name}, COALESCE(SUM(od.{quantity}), 0) AS sold,
  COALESCE(SUM(od.{quantity} * od.{unit_price}), 0)
FROM {order_details} od
JOIN {products} pr ON pr.{id} = od.{product_id}
GROUP BY pr.{id}, pr.{name}
ORDER BY sold DESC, pr.{id} ASC
LIMIT $1`

	recentOrdersQuery schema.Query = `SELECT o.{id}, COALESCE(o.{order_type}, ''), o.{customer_name}, o.{status}, COALESCE(o.{total_amount}, 0), o.{created_at}
FROM {orders} o
ORDER BY o.{created_at} DESC, o.{id} DESC
LIMIT $1`

	ordersByTypeQuery schema.Query = `SELECT COALESCE(LOWER(o.{order_type}), 'unknown') AS order_type, COUNT(*), COALESCE(SUM(o.{total_amount}), 0)
FROM {orders} o
GROUP BY 1
ORDER BY 2 DESC, 1 ASC`

	ordersByDayQuery schema.Query = `SELECT to_char(o.{created_at}::date, 'YYYY-MM-DD') AS day, COUNT(*)
FROM {orders} o
WHERE o.{created_at} >= CURRENT_DATE - ($1::int - 1)
GROUP BY 1
ORDER BY 1`

	salesTrendsQuery schema.Query = `SELECT
  to_char(date_trunc($1::text, o.{created_at}), $2::text) AS period,
  COUNT(*),
  COALESCE(SUM(o.{total_amount}), 0),
  COALESCE(AVG(o.{total_amount}), 0)
FROM {orders} o
WHERE LOWER(o.{order_type}) IN ('sale', 'sell')
  AND o.{created_at} >= CURRENT_DATE - $3::int
GROUP BY 1
ORDER BY 1`

	// Продукты без продаж остаются в выдаче (LEFT JOIN).
	productPerformanceQuery schema.Query = `SELECT pr.{id}, pr.{name},
  COALESCE(SUM(s.{quantity}), 0) AS total_sold,
  COALESCE(SUM(s.{quantity} * s.{unit_price}), 0) AS total_revenue,
  COUNT(DISTINCT s.{order_id}) AS order_count,
  COALESCE(AVG(s.{unit_price}), 0) AS avg_price
FROM {products} pr
LEFT JOIN (
  SELECT od.{product_id}, od.{order_id}, od.{quantity}, od.{unit_price}
  FROM {order_details} od
  JOIN {orders} o ON o.{id} = od.{order_id}
  WHERE LOWER(o.{order_type}) IN ('sale', 'sell')
) s ON s.{product_id} = pr.{id}
GROUP BY pr.{id}, pr.{name}`

	warehouseUtilizationQuery schema.Query = `SELECT w.{id}, w.{name}, COALESCE(w.{location}, ''),
  COUNT(DISTINCT i.{product_id}),
  COALESCE(SUM(i.{quantity}), 0),
  COALESCE(SUM(i.{quantity} * pr.{unit_price}), 0)
FROM {warehouses} w
LEFT JOIN {inventory} i ON i.{warehouse_id} = w.{id}
LEFT JOIN {products} pr ON pr.{id} = i.{product_id}
GROUP BY w.{id}, w.{name}, w.{location}
ORDER BY w.{id}`

	inventoryTurnoverQuery schema.Query = `WITH stock AS (
  SELECT i.{product_id}, SUM(i.{quantity}) AS qty
  FROM {inventory} i
  GROUP BY i.{product_id}
), sold AS (
  SELECT od.{product_id}, SUM(od.{quantity}) AS qty
  FROM {order_details} od
  JOIN {orders} o ON o.{id} = od.{order_id}
  WHERE LOWER(o.{order_type}) IN ('sale', 'sell')
    AND o.{created_at} >= CURRENT_DATE - $1::int
  GROUP BY od.{product_id}
)
SELECT pr.{id}, pr.{name}, COALESCE(sold.qty, 0) AS sold_qty, COALESCE(stock.qty, 0) AS stock_qty
FROM {products} pr
LEFT JOIN stock ON stock.{product_id} = pr.{id}
LEFT JOIN sold ON sold.{product_id} = pr.{id}
WHERE COALESCE(sold.qty, 0) > 0 OR COALESCE(stock.qty, 0) > 0
ORDER BY CASE WHEN COALESCE(stock.qty, 0) > 0 THEN COALESCE(sold.qty, 0)::numeric / stock.qty ELSE 0 END DESC, pr.{id} ASC
LIMIT $2`

	customerAnalyticsQuery schema.Query = `SELECT o.{customer_name}, COUNT(*),
  COALESCE(SUM(o.{total_amount}), 0) AS spent,
  COALESCE(AVG(o.{total_amount}), 0),
  MIN(o.{created_at}), MAX(o.{created_at})
FROM {orders} o
WHERE o.{customer_name} IS NOT NULL AND TRIM(o.{customer_name}) <> ''
  AND o.{created_at} >= CURRENT_DATE - $1::int
GROUP BY o.{customer_name}
ORDER BY spent DESC, o.{customer_name} ASC
LIMIT $2`

	supplierAnalyticsQuery schema.Query = `SELECT s.{id}, s.{name},
  COUNT(DISTINCT pr.{id}) AS product_count,
  COALESCE(SUM(i.{quantity}), 0),
  COALESCE(SUM(i.{quantity} * pr.{unit_price}), 0) AS stock_value
FROM {suppliers} s
LEFT JOIN {products} pr ON pr.{supplier_id} = s.{id}
LEFT JOIN {inventory} i ON i.{product_id} = pr.{id}
GROUP BY s.{id}, s.{name}
ORDER BY product_count DESC, stock_value DESC, s.{id} ASC`
)
