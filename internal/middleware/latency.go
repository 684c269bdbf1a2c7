package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/gocab-backend/internal/clock"
)

const cancelledMessage = "Request cancelled"

// Latency holds every request, matched or not, for d before passing it on.
// A request whose context ends first is aborted with a 503 envelope.
func Latency(clk clock.Clock, d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}

		select {
		case <-clk.After(d):
			c.Next()
		case <-c.Request.Context().Done():
			GetLogger(c).Debug("request cancelled during latency wait", "error", c.Request.Context().Err())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"data":       gin.H{"error": cancelledMessage},
				"statusCode": http.StatusServiceUnavailable,
				"message":    cancelledMessage,
			})
		}
	}
}
