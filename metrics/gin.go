package metrics

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/shardsql/xerrors"
)

const (
	MetricHTTPRequestsTotal   = "shardsql_http_requests_total"
	MetricHTTPDurationSeconds = "shardsql_http_request_duration_seconds"
)

var defaultHTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPServerMetrics 运维端点的请求数与耗时
type HTTPServerMetrics struct {
	requests Counter
	duration Histogram
}

// NewHTTPServerMetrics 在 m 上注册 HTTP 指标
func NewHTTPServerMetrics(m Meter) (*HTTPServerMetrics, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "meter is nil")
	}
	requests, err := m.Counter(MetricHTTPRequestsTotal, "Total number of HTTP requests.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request counter")
	}
	duration, err := m.Histogram(MetricHTTPDurationSeconds, "HTTP request duration in seconds.",
		WithUnit("s"), WithBuckets(defaultHTTPDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http duration histogram")
	}
	return &HTTPServerMetrics{requests: requests, duration: duration}, nil
}

// GinMiddleware 记录每个请求的方法、路由模板和状态类
func (h *HTTPServerMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// 未命中路由时收敛，避免原始路径成为高基数标签
			route = UnknownRoute
		}
		status := c.Writer.Status()
		labels := []Label{
			L(LabelMethod, strings.ToUpper(c.Request.Method)),
			L(LabelRoute, route),
			L(LabelStatusClass, HTTPStatusClass(status)),
			L(LabelOutcome, HTTPOutcome(status)),
		}

		ctx := c.Request.Context()
		h.requests.Inc(ctx, labels...)
		h.duration.Record(ctx, time.Since(start).Seconds(), labels...)
	}
}
