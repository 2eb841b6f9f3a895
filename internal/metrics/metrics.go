package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telemetry"

// Metrics 服务指标；nil 接收者上的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry

	readingsIngested *prometheus.CounterVec // 按状态
	readingsDropped  *prometheus.CounterVec // 按原因
	fanoutPublished  *prometheus.CounterVec // 按发布端、结果
	fanoutDropped    *prometheus.CounterVec // 按原因
	queryDuration    *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	latestCache      *prometheus.CounterVec // hit / miss
}

// New 创建并注册指标（独立 registry，附带 Go 运行时指标）
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		readingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Readings persisted, by classification status.",
		}, []string{"status"}),
		readingsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dropped_total",
			Help:      "Readings not persisted, by reason.",
		}, []string{"reason"}),
		fanoutPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "published_total",
			Help:      "Live messages handed to a publisher, by publisher and result.",
		}, []string{"publisher", "result"}),
		fanoutDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "dropped_total",
			Help:      "Live messages dropped before publishing, by reason.",
		}, []string{"reason"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "History query latency by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		latestCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latest_cache_total",
			Help:      "Latest reading cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.readingsIngested,
		m.readingsDropped,
		m.fanoutPublished,
		m.fanoutDropped,
		m.queryDuration,
		m.httpRequests,
		m.httpDuration,
		m.latestCache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReadingIngested(status string) {
	if m == nil {
		return
	}
	m.readingsIngested.WithLabelValues(status).Inc()
}

func (m *Metrics) ReadingDropped(reason string) {
	if m == nil {
		return
	}
	m.readingsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) FanoutPublished(publisher string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fanoutPublished.WithLabelValues(publisher, result).Inc()
}

func (m *Metrics) FanoutDropped(reason string) {
	if m == nil {
		return
	}
	m.fanoutDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveQuery(kind string, started time.Time) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func (m *Metrics) LatestCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.latestCache.WithLabelValues("hit").Inc()
		return
	}
	m.latestCache.WithLabelValues("miss").Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler 记录请求数和耗时
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
