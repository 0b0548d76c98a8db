package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vocalforge"

// Metrics 指标管理器，每个实例使用独立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 限流指标
	rateLimitTotal *prometheus.CounterVec

	// 业务指标
	generationsSubmitted *prometheus.CounterVec
	generationsCompleted prometheus.Counter
	generationsDeleted   *prometheus.CounterVec
	creditsSpent         prometheus.Counter
	sseClients           prometheus.Gauge

	// 系统指标
	systemMemoryUsage *prometheus.GaugeVec
	systemCPUUsage    prometheus.Gauge
	systemGoroutines  prometheus.Gauge
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		httpResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "path"}),

		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "table"}),

		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}, []string{"cache"}),

		cacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}, []string{"cache"}),

		rateLimitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_total",
			Help:      "Rate limiter decisions",
		}, []string{"route", "result"}),

		generationsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_submitted_total",
			Help:      "Generations accepted for processing",
		}, []string{"beat"}),

		generationsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_completed_total",
			Help:      "Generations that reached Completed",
		}),

		generationsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_deleted_total",
			Help:      "Generations deleted by their owner",
		}, []string{"status"}),

		creditsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_spent_total",
			Help:      "Credits debited for generations",
		}),

		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_clients",
			Help:      "Connected event stream clients",
		}),

		systemMemoryUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_memory_usage_bytes",
			Help:      "System memory usage in bytes",
		}, []string{"type"}),

		systemCPUUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_cpu_usage_percent",
			Help:      "System CPU usage percentage",
		}),

		systemGoroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_goroutines",
			Help:      "Number of goroutines",
		}),
	}
	reg.MustRegister(
		m.httpRequestsTotal, m.httpRequestDuration, m.httpResponseSize,
		m.dbQueryDuration,
		m.cacheHitsTotal, m.cacheMissesTotal,
		m.rateLimitTotal,
		m.generationsSubmitted, m.generationsCompleted, m.generationsDeleted, m.creditsSpent, m.sseClients,
		m.systemMemoryUsage, m.systemCPUUsage, m.systemGoroutines,
	)
	return m
}

// Registry 供测试读取指标
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler Prometheus 抓取接口
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, responseSize int64) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordDBQuery 记录数据库查询指标
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheHit(cache string)  { m.cacheHitsTotal.WithLabelValues(cache).Inc() }
func (m *Metrics) RecordCacheMiss(cache string) { m.cacheMissesTotal.WithLabelValues(cache).Inc() }

// OnAllow / OnDeny 供限流中间件上报
func (m *Metrics) OnAllow(route, key string) { m.rateLimitTotal.WithLabelValues(route, "allow").Inc() }
func (m *Metrics) OnDeny(route, key string)  { m.rateLimitTotal.WithLabelValues(route, "deny").Inc() }

// RecordGenerationSubmitted 记录一次提交及其扣费
func (m *Metrics) RecordGenerationSubmitted(withBeat bool, cost int) {
	label := "no"
	if withBeat {
		label = "yes"
	}
	m.generationsSubmitted.WithLabelValues(label).Inc()
	m.creditsSpent.Add(float64(cost))
}

func (m *Metrics) RecordGenerationCompleted() { m.generationsCompleted.Inc() }

func (m *Metrics) RecordGenerationDeleted(status string) {
	m.generationsDeleted.WithLabelValues(status).Inc()
}

func (m *Metrics) SetSSEClients(n int) { m.sseClients.Set(float64(n)) }

// SetSystemStats 把采样结果写入系统指标
func (m *Metrics) SetSystemStats(s *SystemStats) {
	m.systemMemoryUsage.WithLabelValues("used").Set(float64(s.Memory.Used))
	m.systemMemoryUsage.WithLabelValues("total").Set(float64(s.Memory.Total))
	m.systemMemoryUsage.WithLabelValues("heap").Set(float64(s.Runtime.HeapAlloc))
	m.systemCPUUsage.Set(s.CPU.UsagePercent)
	m.systemGoroutines.Set(float64(s.Runtime.Goroutines))
}
