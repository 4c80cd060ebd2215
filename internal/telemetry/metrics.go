// Package telemetry объявляет Prometheus-метрики сервиса.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheRequests считает обращения к кэшу по результату (hit|miss).
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whstats_cache_requests_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	// CacheLoads считает вычисления значений при промахе (ok|error).
	CacheLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whstats_cache_loads_total",
		Help: "Cache-aside computations by result",
	}, []string{"result"})

	// SchemaFallback считает повторы запроса в альтернативной схеме имен.
	SchemaFallback = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whstats_schema_fallback_total",
		Help: "Read queries retried under the alternate naming convention, by result",
	}, []string{"result"})

	// DashboardDegraded считает метрики дашборда, замененные значением по умолчанию.
	DashboardDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whstats_dashboard_degraded_total",
		Help: "Dashboard branches replaced by their default value",
	}, []string{"metric"})

	// QueryDuration - длительность агрегирующих запросов.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whstats_metric_query_duration_seconds",
		Help:    "Aggregation query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
	}, []string{"metric"})
)
