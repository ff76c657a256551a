// Package monitoring 提供 HTTP 层的 Prometheus 指标
package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unmatchedRoute = "unmatched"

var (
	// RequestsTotal HTTP 请求总数
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDuration 请求耗时，桶覆盖到分钟级
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60, 120, 300},
		},
		[]string{"service", "method", "path"},
	)

	// RequestsInFlight 正在处理的请求数
	RequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
		[]string{"service"},
	)
)

// GinMetrics 按路由模板记录请求数、耗时和并发数，未匹配的路由记为 unmatched
func GinMetrics(service string) gin.HandlerFunc {
	inFlight := RequestsInFlight.WithLabelValues(service)
	return func(c *gin.Context) {
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		RequestsTotal.WithLabelValues(service, method, route, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(service, method, route).Observe(time.Since(start).Seconds())
	}
}
