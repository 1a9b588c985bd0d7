package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheHits counts public media requests served from the cache.
var CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_cache_hits_total",
	Help: "Public media requests answered from the cache.",
})

// CacheMisses counts requests that went to the backing store.
var CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_cache_misses_total",
	Help: "Public media requests that queried the backing store, including forced refreshes.",
})

// CacheErrors counts cache failures that were logged and swallowed, labelled read, write or cleanup.
var CacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_cache_errors_total",
	Help: "Swallowed cache store failures by operation.",
}, []string{"op"})

// BackendErrors counts failed media queries.
var BackendErrors = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_backend_errors_total",
	Help: "Failed backing store queries.",
})

// CleanupDeleted counts cache keys of superseded deployment versions removed by cleanup.
var CleanupDeleted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_cache_cleanup_deleted_total",
	Help: "Stale deployment scoped cache keys removed.",
})

// HTTPResponseTime observes request latency by matched route, method and status.
var HTTPResponseTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "media_http_response_time_seconds",
	Help: "HTTP response time by matched route, method and status.",
}, []string{"route", "method", "status"})

func init() {
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheErrors)
	prometheus.MustRegister(BackendErrors)
	prometheus.MustRegister(CleanupDeleted)
	prometheus.MustRegister(HTTPResponseTime)
}

// Middleware observes response times labelled by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPResponseTime.With(prometheus.Labels{
			"route":  route,
			"method": c.Request.Method,
			"status": strconv.Itoa(c.Writer.Status()),
		}).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
