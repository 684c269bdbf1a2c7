package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedPath = "unmatched"

// Metrics records request rate, errors and duration on reg, labelled by the
// route pattern rather than the raw path.
func Metrics(reg prometheus.Registerer) gin.HandlerFunc {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests (Rate)",
		},
		[]string{"method", "path", "status"},
	)
	errs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total number of HTTP request errors",
		},
		[]string{"method", "path", "status", "error_type"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds (Duration)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	// Register metrics with the provided registry
	reg.MustRegister(requests, errs, duration)

	return func(c *gin.Context) {
		// Capture start time
		start := time.Now()

		// Process request, including the latency wait
		c.Next()

		// Label by route pattern; unmatched paths share one label
		status := c.Writer.Status()
		statusStr := strconv.Itoa(status)
		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method

		// Count the request (Rate)
		requests.WithLabelValues(method, path, statusStr).Inc()

		// Count failures by class (Errors)
		switch {
		case status >= 500:
			errs.WithLabelValues(method, path, statusStr, "server").Inc()
		case status >= 400:
			errs.WithLabelValues(method, path, statusStr, "client").Inc()
		}

		// Observe request duration (Duration)
		duration.WithLabelValues(method, path, statusStr).Observe(time.Since(start).Seconds())
	}
}
