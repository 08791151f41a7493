package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// IngestCounter 入库流水线结果计数
	// result: accepted / duplicate / rejected / infected
	IngestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_ingest_total",
			Help: "Total ingestion attempts by result",
		},
		[]string{"result"},
	)

	// ModerationCounter 审核动作计数
	ModerationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_moderation_total",
			Help: "Total moderation decisions by action",
		},
		[]string{"action"},
	)

	// ExtractionCounter 文本提取结果计数
	// method: native / ocr, result: ok / failed
	ExtractionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_extraction_total",
			Help: "Total text extraction attempts by method and result",
		},
		[]string{"method", "result"},
	)

	// SyncCounter 远端同步结果计数
	SyncCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_sync_total",
			Help: "Total remote sync attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SyncRunExhaustedCounter 整轮同步作业重试耗尽次数，告警项
	SyncRunExhaustedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_run_retries_exhausted_total",
			Help: "Sync runs that exhausted all retry attempts",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(IngestCounter)
	prometheus.MustRegister(ModerationCounter)
	prometheus.MustRegister(ExtractionCounter)
	prometheus.MustRegister(SyncCounter)
	prometheus.MustRegister(SyncRunExhaustedCounter)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
