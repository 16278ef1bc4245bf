package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

// Timer measures one external provider call
type Timer struct {
	start    time.Time
	metrics  *Metrics
	provider string
}

// NewTimer starts a timer for a provider call
func NewTimer(metrics *Metrics, provider string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		provider: provider,
	}
}

// Stop records the call duration under the given status
func (t *Timer) Stop(status string) {
	t.metrics.RecordProviderCall(t.provider, status, time.Since(t.start))
}
