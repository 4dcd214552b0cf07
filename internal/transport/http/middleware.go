package http

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-monitor/livemap/internal/metrics"
)

// RequestMetrics records request latency per route and logs server
// errors. Unmatched routes are grouped under "unmatched".
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())

		if status >= 500 {
			log.Printf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}
	}
}
