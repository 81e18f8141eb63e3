package monitor

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "provider"

var (
	// HTTPRequestsTotal 记录 HTTP 请求总量
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration 记录 HTTP 请求耗时 (Histogram)
	// /api/v1/rpc 上的审批类请求会一直挂起到用户操作，耗时单独由 ApprovalWaitSeconds 统计
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distributions.",
			Buckets:   []float64{0.05, 0.1, 0.3, 1.0, 5.0, 30.0, 120.0},
		},
		[]string{"method", "path"},
	)

	// ApprovalWaitSeconds 审批从入队到用户作答 (或取消) 的耗时
	ApprovalWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "approval_wait_seconds",
			Help:      "Time from approval enqueue to settlement.",
			Buckets:   []float64{1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"kind", "outcome"},
	)
)

// Init 初始化并注册监控指标
func Init() {
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration, ApprovalWaitSeconds)
	// 初始化业务指标
	InitBusinessMetrics()
}

// ObserveApprovalWait since 为零值时忽略
func ObserveApprovalWait(kind, outcome string, since time.Time) {
	if since.IsZero() {
		return
	}
	ApprovalWaitSeconds.WithLabelValues(kind, outcome).Observe(time.Since(since).Seconds())
}

// PrometheusMiddleware 按路由模板 (/api/v1/approvals/:id/approve) 统计，未匹配的路由不计入
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		if path == "" {
			return
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
