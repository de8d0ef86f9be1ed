package middleware

import (
	"time"

	"card-order-service/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics records API requests against their route template. Requests that
// match no route share one series; routes listed in skip are not recorded.
func Metrics(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		metrics.HTTPInFlight.Inc()
		start := time.Now()
		c.Next()
		metrics.HTTPInFlight.Dec()

		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, metrics.StatusClass(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
